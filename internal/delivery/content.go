package delivery

import (
	"strings"

	"github.com/nickgarreis/agentic-outreach-system/internal/model"
)

// substitutions are the per-recipient variables the provider applies to the
// shared group body, subject and footer.
func substitutions(lead *model.Lead) map[string]string {
	return map[string]string{
		"{{first_name}}": lead.FirstName,
		"{{last_name}}":  lead.LastName,
		"{{full_name}}":  lead.FullName(),
		"{{company}}":    lead.Company,
		"{{title}}":      lead.Title,
		"{{email}}":      lead.Email,
	}
}

func personalize(text string, lead *model.Lead) string {
	for variable, value := range substitutions(lead) {
		text = strings.ReplaceAll(text, variable, value)
	}
	return text
}

// formatHTML wraps raw message content in an HTML document, converting plain
// text and appending the campaign footer when enabled. Personalization
// variables are left in place for the provider's substitution pass.
func formatHTML(content string, opts SendOptions) string {
	body := content
	if !strings.HasPrefix(strings.TrimSpace(body), "<") {
		body = "<p>" + strings.ReplaceAll(body, "\n", "<br>\n") + "</p>"
	}

	footer := ""
	if opts.FooterEnabled && opts.FooterTemplate != "" {
		footer = `
<br><br>
<hr style="border: 1px solid #eee;">
<div style="margin-top: 20px; font-size: 12px; color: #666;">
` + opts.FooterTemplate + `
</div>`
	}

	return `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
` + body + footer + `
</body>
</html>`
}
