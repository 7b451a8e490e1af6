package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	middleware "github.com/phillip/campus-events-go/middleware"
	models "github.com/phillip/campus-events-go/models"
	navigation "github.com/phillip/campus-events-go/navigation"
	pinmap "github.com/phillip/campus-events-go/pinmap"
)

// ---------------- PLACING ----------------

// SetPlacing toggles pin-drop mode. It is only available on the host form.
func SetPlacing(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Placing *bool `json:"placing" form:"placing" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "placing is required"})
			return
		}

		s := middleware.CurrentSession(c)
		if *input.Placing && s.State().Section != navigation.Host {
			c.JSON(http.StatusConflict, gin.H{"error": "open the host form to drop a pin"})
			return
		}
		s.Pins(func(p *pinmap.Controller) {
			if *input.Placing {
				p.BeginPlacing()
			} else {
				p.EndPlacing()
			}
		})
		c.JSON(http.StatusOK, gin.H{"map": d.mapOf(s)})
	}
}

// ---------------- CLICK ----------------
func MapClick(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Lat *float64 `json:"lat" form:"lat" binding:"required"`
			Lng *float64 `json:"lng" form:"lng" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
			return
		}

		s := middleware.CurrentSession(c)
		var recorded bool
		var dropped models.Coordinates
		s.Pins(func(p *pinmap.Controller) {
			recorded = p.Click(models.Coordinates{Lat: *input.Lat, Lng: *input.Lng})
			dropped, _ = p.Dropped()
		})

		body := gin.H{"recorded": recorded, "map": d.mapOf(s)}
		if recorded {
			// The host form fills its coordinates from the dropped pin.
			body["coordinates"] = dropped
		}
		c.JSON(http.StatusOK, body)
	}
}

// ---------------- SHOW PINS ----------------
func ShowPins(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Show *bool `json:"show" form:"show" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "show is required"})
			return
		}

		s := middleware.CurrentSession(c)
		s.Pins(func(p *pinmap.Controller) { p.SetShowPins(*input.Show) })
		c.JSON(http.StatusOK, gin.H{"map": d.mapOf(s)})
	}
}

// endPlacing leaves pin-drop mode after the host form is submitted.
func endPlacing(c *gin.Context) {
	if s := middleware.CurrentSession(c); s != nil {
		s.Pins(func(p *pinmap.Controller) { p.EndPlacing() })
	}
}
