package live

import (
	"bytes"
	"strconv"
	"time"

	"backend-racehub/internal/errs"
	"backend-racehub/internal/race"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const domain = "live"

type EventType string

const (
	EventParticipantUpdate  EventType = "participantUpdate"
	EventOnlineParticipants EventType = "onlineParticipants"
	EventRaceStatusUpdate   EventType = "raceStatusUpdate"
	EventParticipantJoined  EventType = "participantJoined"
	EventParticipantLeft    EventType = "participantLeft"
)

var validate = validator.New()

// Envelope is the wire form of a live event, as pushed by the platform's
// socket server and carried on the bus.
type Envelope struct {
	RaceID string          `json:"race_id" validate:"required"`
	Type   EventType       `json:"type" validate:"required,oneof=participantUpdate onlineParticipants raceStatusUpdate participantJoined participantLeft"`
	Data   json.RawMessage `json:"data" validate:"required"`
}

// Timestamp accepts epoch milliseconds or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time)
}

type ParticipantUpdate struct {
	UserID    string      `json:"userId" validate:"required"`
	Coords    race.Coords `json:"coords"`
	Speed     float64     `json:"speed" validate:"gte=0"`
	Timestamp Timestamp   `json:"timestamp"`
	Finished  bool        `json:"finished"`
}

type OnlineParticipant struct {
	UserID string `json:"userId" validate:"required"`
}

type ParticipantJoined struct {
	UserID    string `json:"userId" validate:"required"`
	Name      string `json:"name"`
	BibNumber string `json:"bibNumber"`
}

type ParticipantLeft struct {
	UserID string `json:"userId" validate:"required"`
}

type RaceStatusUpdate struct {
	Status string `json:"status" validate:"required"`
}

// Event is a decoded envelope. Exactly one payload field is set, matching Type.
type Event struct {
	RaceID string
	Type   EventType
	Update *ParticipantUpdate
	Online []string
	Joined *race.Participant
	Left   string
	Status string
}

// Decode parses and validates a bus payload.
func Decode(payload []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, errs.InvalidInput(domain, "decode envelope: %v", err)
	}
	return env.Event()
}

// Event validates the envelope and decodes its typed payload.
func (env Envelope) Event() (Event, error) {
	if err := validate.Struct(env); err != nil {
		return Event{}, errs.InvalidInput(domain, "invalid envelope: %v", err)
	}

	ev := Event{RaceID: env.RaceID, Type: env.Type}
	switch env.Type {
	case EventParticipantUpdate:
		var u ParticipantUpdate
		if err := decodeData(env.Data, &u); err != nil {
			return Event{}, err
		}
		if !validCoords(u.Coords) {
			return Event{}, errs.InvalidInput(domain, "coords out of range: %v", u.Coords)
		}
		ev.Update = &u
	case EventOnlineParticipants:
		var online []OnlineParticipant
		if err := json.Unmarshal(env.Data, &online); err != nil {
			return Event{}, errs.InvalidInput(domain, "decode %s: %v", env.Type, err)
		}
		ev.Online = make([]string, 0, len(online))
		for _, o := range online {
			if o.UserID == "" {
				return Event{}, errs.InvalidInput(domain, "online participant without userId")
			}
			ev.Online = append(ev.Online, o.UserID)
		}
	case EventParticipantJoined:
		var j ParticipantJoined
		if err := decodeData(env.Data, &j); err != nil {
			return Event{}, err
		}
		ev.Joined = &race.Participant{UserID: j.UserID, Name: j.Name, BibNumber: j.BibNumber}
	case EventParticipantLeft:
		var l ParticipantLeft
		if err := decodeData(env.Data, &l); err != nil {
			return Event{}, err
		}
		ev.Left = l.UserID
	case EventRaceStatusUpdate:
		var s RaceStatusUpdate
		if err := decodeData(env.Data, &s); err != nil {
			return Event{}, err
		}
		ev.Status = s.Status
	}
	return ev, nil
}

func decodeData(data json.RawMessage, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return errs.InvalidInput(domain, "decode event data: %v", err)
	}
	if err := validate.Struct(out); err != nil {
		return errs.InvalidInput(domain, "invalid event data: %v", err)
	}
	return nil
}

func validCoords(c race.Coords) bool {
	return c.Lon() >= -180 && c.Lon() <= 180 && c.Lat() >= -90 && c.Lat() <= 90
}
