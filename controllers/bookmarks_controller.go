package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ---------------- ADD ----------------
func AddBookmark(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		eventID := c.Param("eventId")
		if err := d.Accounts.AddBookmark(ctx, currentUserID(c), eventID); err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "event bookmarked", "event_id": eventID})
	}
}

// ---------------- LIST ----------------
func ListBookmarks(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		ids, err := d.Accounts.ListBookmarks(ctx, currentUserID(c))
		if err != nil {
			d.respondError(c, err)
			return
		}
		found, err := d.Events.FetchByIDs(ctx, ids)
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"bookmarks": ids, "events": found})
	}
}

// ---------------- DELETE ----------------
func RemoveBookmark(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		eventID := c.Param("eventId")
		if err := d.Accounts.RemoveBookmark(ctx, currentUserID(c), eventID); err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "bookmark removed", "event_id": eventID})
	}
}

// ---------------- PRUNE ----------------
func PruneBookmarks(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		removed := d.Accounts.PruneDanglingBookmarks(ctx, currentUserID(c))
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// ---------------- NOTIFICATIONS ----------------
func ListNotifications(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		n, err := d.Accounts.Notifications(ctx, currentUserID(c))
		if err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

// ---------------- MAINTENANCE ----------------
func CleanupExpired(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		c.JSON(http.StatusOK, gin.H{"deleted": d.Events.CleanupExpired(ctx)})
	}
}
