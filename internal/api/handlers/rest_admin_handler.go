package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/api/middleware"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/storage"
	"github.com/Roland735/rentbot/internal/utils"
)

const defaultAdminPageSize = 100

// RestAdminHandler serves operator endpoints under /v1/admin.
type RestAdminHandler struct {
	userService       services.IUserService
	creditService     services.ICreditService
	moderationService services.IModerationService
	listingService    services.IListingService
	catalogService    services.ICatalogService
	storageService    storage.IS3Storage
	logger            *zap.Logger
}

// AdminDeps wires the admin handler.
type AdminDeps struct {
	Users      services.IUserService
	Credits    services.ICreditService
	Moderation services.IModerationService
	Listings   services.IListingService
	Catalog    services.ICatalogService
	Storage    storage.IS3Storage
	Logger     *zap.Logger
}

func NewRestAdminHandler(deps AdminDeps) *RestAdminHandler {
	return &RestAdminHandler{
		userService:       deps.Users,
		creditService:     deps.Credits,
		moderationService: deps.Moderation,
		listingService:    deps.Listings,
		catalogService:    deps.Catalog,
		storageService:    deps.Storage,
		logger:            deps.Logger,
	}
}

// AdminUser is the operator view of a user.
type AdminUser struct {
	Phone      string `json:"phone"`
	Credits    int    `json:"credits"`
	Role       string `json:"role"`
	OptedOut   bool   `json:"opted_out"`
	InSession  bool   `json:"in_session"`
	DateJoined string `json:"date_joined"`
}

func pageSize(c *gin.Context) int64 {
	n, err := strconv.ParseInt(c.DefaultQuery("limit", ""), 10, 64)
	if err != nil || n <= 0 || n > 1000 {
		return defaultAdminPageSize
	}
	return n
}

// ListUsers handles GET /v1/admin/users
func (h *RestAdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context(), pageSize(c))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve users"})
		return
	}
	out := make([]AdminUser, 0, len(users))
	for _, u := range users {
		out = append(out, AdminUser{
			Phone:      u.Phone,
			Credits:    u.Credits,
			Role:       string(u.Role),
			OptedOut:   u.OptedOut,
			InSession:  u.Session != nil,
			DateJoined: u.CreatedAt.Format("2006-01-02"),
		})
	}
	c.JSON(http.StatusOK, out)
}

type setCreditsRequest struct {
	Phone   string `json:"phone"`
	Credits *int   `json:"credits"`
}

// SetCredits handles POST /v1/admin/users/credits. Without a phone every
// user's balance is set.
func (h *RestAdminHandler) SetCredits(c *gin.Context) {
	var req setCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits == nil || *req.Credits < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credits must be a non-negative integer"})
		return
	}
	phone := ""
	if strings.TrimSpace(req.Phone) != "" {
		phone = utils.NormalizePhone(req.Phone)
		if !utils.ValidPhone(phone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
			return
		}
	}

	updated, err := h.creditService.SetBalance(c.Request.Context(), phone, *req.Credits)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set credits"})
		return
	}
	if phone != "" && updated == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	h.logger.Info("Credits set by operator",
		zap.String("operator", c.GetString(middleware.ContextKeySubject)),
		zap.Int("credits", *req.Credits),
		zap.Int64("updated", updated))
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ListTickets handles GET /v1/admin/tickets?status=open
func (h *RestAdminHandler) ListTickets(c *gin.Context) {
	status := models.TicketStatus(c.DefaultQuery("status", string(models.TicketOpen)))
	tickets, err := h.moderationService.List(c.Request.Context(), status, pageSize(c))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tickets"})
		return
	}
	if tickets == nil {
		tickets = []models.ModerationTicket{}
	}
	c.JSON(http.StatusOK, tickets)
}

// CloseTicket handles POST /v1/admin/tickets/:id/close
func (h *RestAdminHandler) CloseTicket(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket ID format"})
		return
	}
	closed, err := h.moderationService.Close(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to close ticket"})
		return
	}
	if !closed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Open ticket not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// GetUploadURL handles POST /v1/admin/listings/:id/upload-url. The returned
// URL accepts a single PUT of the image.
func (h *RestAdminHandler) GetUploadURL(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" || !strings.HasPrefix(req.ContentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required arguments (filename, content_type image/*)"})
		return
	}

	ctx := c.Request.Context()
	listing, err := h.listingService.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve listing"})
		}
		return
	}

	uploadURL, objectKey, err := h.storageService.GeneratePresignedPutURL(ctx, listing.OwnerPhone, listing.ID.String(), req.Filename, req.ContentType)
	if err != nil {
		h.logger.Error("Failed to generate upload URL", zap.String("listing_id", listing.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate upload URL"})
		return
	}
	if err := h.listingService.AddImage(ctx, listing.ID, h.storageService.PublicURL(objectKey)); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach image"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload_url": uploadURL,
		"object_key": objectKey,
	})
}

type suburbsRequest struct {
	Suburbs []string `json:"suburbs"`
}

// SetSuburbs handles PUT /v1/admin/catalog/suburbs. The order given is the
// order shown to users.
func (h *RestAdminHandler) SetSuburbs(c *gin.Context) {
	var req suburbsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	suburbs := make([]string, 0, len(req.Suburbs))
	for _, s := range req.Suburbs {
		if s = strings.TrimSpace(s); s != "" {
			suburbs = append(suburbs, s)
		}
	}
	if len(suburbs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one suburb is required"})
		return
	}
	if err := h.catalogService.SetSuburbs(c.Request.Context(), suburbs); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save suburbs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suburbs": suburbs})
}
