package repository

import (
	"database/sql"

	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
)

type LeadRepositoryInterface interface {
	GetByID(id int) (*model.Lead, error)
}

type LeadRepository struct {
	DB *sql.DB
}

func (r *LeadRepository) GetByID(id int) (*model.Lead, error) {
	query := `
        SELECT id, campaign_id, email, first_name, last_name, company, title
        FROM leads WHERE id=$1
    `
	var l model.Lead
	err := r.DB.QueryRow(query, id).Scan(
		&l.ID, &l.CampaignID, &l.Email, &l.FirstName, &l.LastName, &l.Company, &l.Title,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewLeadNotFound(id)
		}
		return nil, err
	}
	return &l, nil
}
