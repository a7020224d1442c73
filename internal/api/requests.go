package api

import (
	"fmt"

	"gigflow/internal/models"
	"gigflow/internal/money"
	"gigflow/internal/schedule"
	"gigflow/internal/service"
)

type gigRequest struct {
	Title         string       `json:"title" validate:"required,max=200"`
	Description   string       `json:"description" validate:"max=5000"`
	City          string       `json:"city" validate:"max=200"`
	Location      string       `json:"location" validate:"max=200"`
	EventDate     string       `json:"event_date" validate:"isodate"`
	StartTime     string       `json:"start_time" validate:"hhmm"`
	EndTime       string       `json:"end_time" validate:"hhmm"`
	DurationHours float64      `json:"duration_hours" validate:"gte=0,lte=24"`
	Budget        money.Amount `json:"budget"`
	Genres        []string     `json:"genres" validate:"max=20,dive,max=50"`
	ContactPhone  string       `json:"contact_phone" validate:"max=40"`
	ContactEmail  string       `json:"contact_email" validate:"omitempty,email"`
}

// gig builds the model. A duration fills in a missing end time.
func (r gigRequest) gig() (*models.Gig, error) {
	g := &models.Gig{
		Title:        r.Title,
		Description:  r.Description,
		City:         r.City,
		Location:     r.Location,
		EventDate:    r.EventDate,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Budget:       r.Budget,
		Genres:       r.Genres,
		ContactPhone: r.ContactPhone,
		ContactEmail: r.ContactEmail,
	}
	if g.EndTime == "" && g.StartTime != "" && r.DurationHours > 0 {
		end, err := schedule.AddDuration(g.StartTime, r.DurationHours)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		g.EndTime = end
	}
	return g, nil
}

// optionalAmount tells an explicit null apart from a missing field.
type optionalAmount struct {
	Set    bool
	Amount money.Amount
}

func (o *optionalAmount) UnmarshalJSON(data []byte) error {
	o.Set = true
	return o.Amount.UnmarshalJSON(data)
}

type gigPatchRequest struct {
	Title        *string        `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string        `json:"description" validate:"omitempty,max=5000"`
	City         *string        `json:"city" validate:"omitempty,max=200"`
	Location     *string        `json:"location" validate:"omitempty,max=200"`
	EventDate    *string        `json:"event_date" validate:"omitempty,isodate"`
	StartTime    *string        `json:"start_time" validate:"omitempty,hhmm"`
	EndTime      *string        `json:"end_time" validate:"omitempty,hhmm"`
	Budget       optionalAmount `json:"budget"`
	Genres       *[]string      `json:"genres" validate:"omitempty,max=20,dive,max=50"`
	ContactPhone *string        `json:"contact_phone" validate:"omitempty,max=40"`
	ContactEmail *string        `json:"contact_email" validate:"omitempty,email"`
	Version      int64          `json:"version" validate:"gte=0"`
}

func (r gigPatchRequest) update() service.GigUpdate {
	u := service.GigUpdate{
		Title:        r.Title,
		Description:  r.Description,
		City:         r.City,
		Location:     r.Location,
		EventDate:    r.EventDate,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		ContactPhone: r.ContactPhone,
		ContactEmail: r.ContactEmail,
		Version:      r.Version,
	}
	if r.Budget.Set {
		b := r.Budget.Amount
		u.Budget = &b
	}
	if r.Genres != nil {
		u.Genres = *r.Genres
		if u.Genres == nil {
			u.Genres = []string{}
		}
	}
	return u
}

type applyRequest struct {
	CoverLetter string       `json:"cover_letter" validate:"max=2000"`
	ExpectedFee money.Amount `json:"expected_fee"`
}

type selectionRequest struct {
	ApplicationIDs []int64 `json:"application_ids" validate:"max=100,dive,gt=0"`
}

type messageRequest struct {
	Message string `json:"message" validate:"required"`
}

type fundingRequest struct {
	Budget money.Amount   `json:"budget"`
	Fees   []money.Amount `json:"fees" validate:"max=100"`
}
