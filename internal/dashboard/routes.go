package dashboard

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/chat"
	"github.com/zulandar/procurebot/internal/logging"
)

type handlers struct {
	query    *Query
	records  Records
	exporter Exporter
	sessions SessionFactory
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	// Embedded static assets (served from assets/ subdir of the embed.FS).
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	// Pages.
	router.GET("/", h.index)
	router.POST("/check", h.check)
	router.POST("/login", h.login)
	router.POST("/logout", h.logout)
	router.GET("/negotiations/:id", h.negotiation)
	router.GET("/negotiations/:id/pdf", h.exportPDF)
	router.POST("/negotiations/:id/delete", h.remove)

	// Live chat stream of one negotiation.
	router.GET("/negotiations/:id/events", h.events)

	// JSON.
	router.GET("/api/negotiations", h.listJSON)
}

func (h *handlers) index(c *gin.Context) {
	if tab, ok := c.GetQuery("tab"); ok {
		h.query.SetTab(ParseTab(tab))
	}
	if q, ok := c.GetQuery("q"); ok {
		h.query.SetSearch(q)
	}
	v := h.query.View()
	c.HTML(http.StatusOK, "layout.html", gin.H{
		"page": "index",
		"view": v,
		"tabs": []Tab{TabActive, TabConcluded, TabAll},
		"err":  errText(v.Err),
	})
}

func (h *handlers) check(c *gin.Context) {
	if _, err := h.query.CheckEmail(c.Request.Context(), c.PostForm("email")); err != nil {
		log := logging.Ctx(c.Request.Context())
		log.Debug().Err(err).Msg("email check failed")
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handlers) login(c *gin.Context) {
	if err := h.query.Login(c.Request.Context(), c.PostForm("email"), c.PostForm("code")); err != nil {
		log := logging.Ctx(c.Request.Context())
		log.Info().Err(err).Msg("dashboard login failed")
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handlers) logout(c *gin.Context) {
	h.query.Logout()
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handlers) negotiation(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.records.GetNegotiation(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, statusOf(err), err)
		return
	}
	bubbles := make([]chat.Bubble, len(rec.ChatHistory))
	for i, msg := range rec.ChatHistory {
		bubbles[i] = chat.RenderBubble(msg, rec.TargetDetails)
	}
	status := "Active"
	if rec.IsConcluded() {
		status = "Concluded"
	}
	c.HTML(http.StatusOK, "layout.html", gin.H{
		"page":    "negotiation",
		"rec":     rec,
		"status":  status,
		"bubbles": bubbles,
		"live":    h.sessions != nil && !rec.IsConcluded() && !rec.FromCache,
	})
}

func (h *handlers) exportPDF(c *gin.Context) {
	if h.exporter == nil {
		h.renderError(c, http.StatusNotImplemented, errors.New("PDF export is not configured"))
		return
	}
	id := c.Param("id")
	body, err := h.exporter.ExportPDF(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, statusOf(err), err)
		return
	}
	defer body.Close()
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `inline; filename="negotiation-`+url.PathEscape(id)+`.pdf"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		log := logging.Ctx(c.Request.Context())
		log.Warn().Err(err).Str("negotiation", id).Msg("pdf stream interrupted")
	}
}

func (h *handlers) remove(c *gin.Context) {
	if c.PostForm("confirm") != "yes" {
		h.renderError(c, http.StatusBadRequest, errors.New("deletion was not confirmed"))
		return
	}
	creds := api.Credentials{Email: c.PostForm("email"), Code: c.PostForm("code")}
	err := h.query.Delete(c.Request.Context(), c.Param("id"), creds)
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/")
	case errors.Is(err, ErrNotLoggedIn):
		h.renderError(c, http.StatusUnauthorized, err)
	case errors.Is(err, ErrConfirmation):
		h.renderError(c, http.StatusForbidden, err)
	default:
		h.renderError(c, statusOf(err), err)
	}
}

type listResponse struct {
	Tab          Tab           `json:"tab"`
	Search       string        `json:"search"`
	Counters     Counters      `json:"counters"`
	Negotiations []listSummary `json:"negotiations"`
}

type listSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Suppliers []string `json:"suppliers"`
	CreatedAt string   `json:"created_at,omitempty"`
}

func (h *handlers) listJSON(c *gin.Context) {
	if tab, ok := c.GetQuery("tab"); ok {
		h.query.SetTab(ParseTab(tab))
	}
	if q, ok := c.GetQuery("q"); ok {
		h.query.SetSearch(q)
	}
	v := h.query.View()
	if !v.LoggedIn {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrNotLoggedIn.Error()})
		return
	}
	resp := listResponse{Tab: v.Tab, Search: v.Search, Counters: v.Counters, Negotiations: []listSummary{}}
	for _, n := range v.Items {
		suppliers := n.TargetDetails.SupplierNames()
		if suppliers == nil {
			suppliers = []string{}
		}
		resp.Negotiations = append(resp.Negotiations, listSummary{
			ID: n.ID, Name: n.Name, Status: n.Status, Suppliers: suppliers, CreatedAt: string(n.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) renderError(c *gin.Context, status int, err error) {
	c.HTML(status, "layout.html", gin.H{
		"page": "error",
		"err":  err.Error(),
	})
}

// statusOf maps a backend error to the status the dashboard answers with.
func statusOf(err error) int {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Status
	}
	return http.StatusBadGateway
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
