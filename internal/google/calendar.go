package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gigflow/internal/models"
	"gigflow/internal/money"
	"gigflow/internal/schedule"

	guuid "github.com/google/uuid"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// eventNamespace seeds deterministic event ids so a retried insert of the
// same block hits the existing event.
var eventNamespace = guuid.MustParse("5b0f3c1e-8d0a-4b7e-9a55-3f1c2d6e7a90")

// CalendarService mirrors musician calendar blocks into a Google Calendar.
type CalendarService struct {
	service    *calendar.Service
	calendarID string
	loc        *time.Location
}

func NewCalendarService(ctx context.Context, credentialsFile, calendarID string, loc *time.Location) (*CalendarService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}

	return newCalendarService(srv, calendarID, loc), nil
}

func newCalendarService(srv *calendar.Service, calendarID string, loc *time.Location) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{service: srv, calendarID: calendarID, loc: loc}
}

// TestConnection reads the configured calendar.
func (s *CalendarService) TestConnection(ctx context.Context) error {
	if _, err := s.service.Calendars.Get(s.calendarID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a credentials file, the
// address the calendar has to be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// EventID returns the calendar event id used for a gig block of musicianID.
func EventID(gigID, musicianID int64) string {
	id := guuid.NewSHA1(eventNamespace, []byte("gig:"+strconv.FormatInt(gigID, 10)+":musician:"+strconv.FormatInt(musicianID, 10)))
	return strings.ReplaceAll(id.String(), "-", "")
}

// InsertBlock creates the event of block and returns its id.
func (s *CalendarService) InsertBlock(ctx context.Context, gig *models.Gig, block *models.CalendarBlock) (string, error) {
	event, err := blockEvent(gig, block, s.loc)
	if err != nil {
		return "", err
	}

	created, err := s.service.Events.Insert(s.calendarID, event).Context(ctx).Do()
	if err == nil {
		return created.Id, nil
	}
	if !isStatus(err, http.StatusConflict) {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}

	// The id is fixed per gig and musician, so a deleted event comes back
	// cancelled. Overwrite it with the current slot.
	event.Status = "confirmed"
	updated, err := s.service.Events.Update(s.calendarID, event.Id, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update calendar event: %w", err)
	}
	return updated.Id, nil
}

// DeleteBlock removes an event. Events that are already gone count as deleted.
func (s *CalendarService) DeleteBlock(ctx context.Context, externalID string) error {
	if externalID == "" {
		return nil
	}
	err := s.service.Events.Delete(s.calendarID, externalID).Context(ctx).Do()
	if err != nil && !isStatus(err, http.StatusNotFound) && !isStatus(err, http.StatusGone) {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func blockEvent(gig *models.Gig, block *models.CalendarBlock, loc *time.Location) (*calendar.Event, error) {
	slot, ok := schedule.NewSlot(block.Date, block.StartTime, block.EndTime, loc)
	if !ok {
		return nil, fmt.Errorf("block %d has no usable slot", block.ID)
	}

	title := "Show"
	var description []string
	location := ""
	if gig != nil {
		if gig.Title != "" {
			title = gig.Title
		}
		location = strings.Trim(gig.Location+", "+gig.City, ", ")
		if gig.Description != "" {
			description = append(description, gig.Description)
		}
		description = append(description, "Orçamento: "+money.FormatAmount(gig.Budget))
	}

	return &calendar.Event{
		Id:          EventID(block.GigID, block.MusicianID),
		Summary:     title,
		Description: strings.Join(description, "\n"),
		Location:    location,
		Start: &calendar.EventDateTime{
			DateTime: slot.Start.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: slot.End.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				"gig_id":      strconv.FormatInt(block.GigID, 10),
				"musician_id": strconv.FormatInt(block.MusicianID, 10),
			},
		},
	}, nil
}
