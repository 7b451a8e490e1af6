package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	accounts "github.com/phillip/campus-events-go/accounts"
	middleware "github.com/phillip/campus-events-go/middleware"
	navigation "github.com/phillip/campus-events-go/navigation"
)

type credentialsInput struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// ---------------- SIGN UP ----------------
func SignUp(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input credentialsInput
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		if err := d.Accounts.SignUp(ctx, input.Email, input.Password); err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "Account created. Check your email to verify your address before signing in.",
		})
	}
}

// ---------------- SIGN IN ----------------
func SignIn(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			credentialsInput
			ResendVerification bool `json:"resend_verification" form:"resend_verification"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		sess, acc, err := d.Accounts.SignIn(ctx, input.Email, input.Password,
			accounts.SignInOptions{ResendVerification: input.ResendVerification})
		if err != nil {
			d.respondError(c, err)
			return
		}

		middleware.SetAuthCookie(c, sess.Token, int(d.Config.SessionTTL.Seconds()), d.SecureCookies())
		body := gin.H{
			"token":      sess.Token,
			"expires_at": sess.ExpiresAt,
			"account":    acc,
		}
		if s := middleware.CurrentSession(c); s != nil {
			body["navigation"] = d.applyOutcome(c, s.SetAccount(acc, sess.Token))
		}
		c.JSON(http.StatusOK, body)
	}
}

// ---------------- SIGN OUT ----------------
func SignOut(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		token := middleware.CurrentToken(c)
		if token == "" {
			token = middleware.RequestToken(c)
		}
		if token != "" {
			d.Accounts.SignOut(ctx, token)
		}
		middleware.ClearAuthCookie(c)

		out := navigation.Outcome{Notice: "Logged out successfully"}
		if s := middleware.CurrentSession(c); s != nil {
			if s.Account() != nil {
				out = s.SetAccount(nil, "")
			} else {
				out = navigation.Outcome{State: s.State(), Notice: out.Notice}
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"message":    out.Notice,
			"navigation": d.applyOutcome(c, out),
		})
	}
}

// ---------------- PASSWORD RESET ----------------
func RequestPasswordReset(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email string `json:"email" form:"email" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
			return
		}

		ctx, cancel := withTimeout(c, listTimeout)
		defer cancel()

		if err := d.Accounts.SendPasswordReset(ctx, input.Email); err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent."})
	}
}

func ConfirmPasswordReset(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Token    string `json:"token" form:"token" binding:"required"`
			Password string `json:"password" form:"password" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token and password are required"})
			return
		}

		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		if err := d.Accounts.ConfirmPasswordReset(ctx, input.Token, input.Password); err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password updated. You can sign in now."})
	}
}

// ---------------- VERIFY ----------------
func VerifyEmail(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
			return
		}

		ctx, cancel := withTimeout(c, docTimeout)
		defer cancel()

		if err := d.Accounts.VerifyEmail(ctx, token); err != nil {
			d.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Email verified. You can sign in now."})
	}
}

// ---------------- ME ----------------
func Me(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account": middleware.CurrentAccount(c)})
	}
}
