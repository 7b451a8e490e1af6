// Package pinmap holds the map pin state of one session: which events are
// drawn, which one is highlighted and the pin a host drops while placing a
// new event location.
package pinmap

import (
	models "github.com/phillip/campus-events-go/models"
)

type Mode string

const (
	Idle        Mode = "idle"
	Placing     Mode = "placing"
	Highlighted Mode = "highlighted"
)

// Pin is one marker on the map. Dropped pins carry no event id.
type Pin struct {
	EventID     string  `json:"event_id,omitempty"`
	Title       string  `json:"title,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Highlighted bool    `json:"highlighted"`
	Dropped     bool    `json:"dropped,omitempty"`
}

// Controller is not safe for concurrent use.
type Controller struct {
	placing  bool
	dropped  *models.Coordinates
	showPins bool
	selected string
}

func New() *Controller {
	return &Controller{showPins: true}
}

func (c *Controller) BeginPlacing() { c.placing = true }

// EndPlacing leaves pin-drop mode and forgets the dropped pin.
func (c *Controller) EndPlacing() {
	c.placing = false
	c.dropped = nil
}

// Click records a map click as the dropped pin while placing. It reports
// whether the click was recorded.
func (c *Controller) Click(at models.Coordinates) bool {
	if !c.placing {
		return false
	}
	pin := at
	c.dropped = &pin
	return true
}

func (c *Controller) Dropped() (models.Coordinates, bool) {
	if c.dropped == nil {
		return models.Coordinates{}, false
	}
	return *c.dropped, true
}

func (c *Controller) SetShowPins(show bool) { c.showPins = show }

func (c *Controller) ShowPins() bool { return c.showPins }

func (c *Controller) Placing() bool { return c.placing }

func (c *Controller) Mode() Mode {
	switch {
	case c.placing:
		return Placing
	case c.selected != "":
		return Highlighted
	default:
		return Idle
	}
}

// Render returns the pins to draw. While placing only the dropped pin is
// shown. Events without a usable location are skipped.
func (c *Controller) Render(events []models.Event, selectedID string) []Pin {
	c.selected = selectedID

	pins := []Pin{}
	if !c.placing && c.showPins {
		for _, ev := range events {
			if ev.Latitude == 0 || ev.Longitude == 0 {
				continue
			}
			id := ev.ID.Hex()
			pins = append(pins, Pin{
				EventID:     id,
				Title:       ev.Title,
				Lat:         ev.Latitude,
				Lng:         ev.Longitude,
				Highlighted: selectedID != "" && id == selectedID,
			})
		}
	}
	if c.dropped != nil {
		pins = append(pins, Pin{Lat: c.dropped.Lat, Lng: c.dropped.Lng, Dropped: true})
	}
	return pins
}
