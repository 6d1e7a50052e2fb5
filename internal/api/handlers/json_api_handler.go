package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/api/middleware"
	"github.com/Roland735/rentbot/internal/auth"
	"github.com/Roland735/rentbot/internal/bot"
	"github.com/Roland735/rentbot/internal/config"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/utils"
)

// Context key type for AuthResult
type authContextKey string

const authResultKey authContextKey = "authResult"

func getAuthFromContext(ctx context.Context) (*AuthResult, bool) {
	val, ok := ctx.Value(authResultKey).(*AuthResult)
	return val, ok
}

// IBot is the part of the bot the HTTP layer drives.
type IBot interface {
	Handle(ctx context.Context, in bot.Inbound) error
}

// JsonApiRequest defines the expected structure for JSON API requests.
type JsonApiRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JsonApiResponse defines the structure for JSON API responses.
type JsonApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type apiMethodFunc func(c *gin.Context, args json.RawMessage) (interface{}, *ApiError)

// JsonApiHandler serves POST /v1/api. Action methods run the same command
// handlers as WhatsApp; replies are delivered to the user's WhatsApp number.
type JsonApiHandler struct {
	cfg     *config.Config
	bot     IBot
	catalog services.ICatalogService
	logger  *zap.Logger
	methods map[string]apiMethodFunc
}

func NewJsonApiHandler(cfg *config.Config, b IBot, catalog services.ICatalogService, logger *zap.Logger) *JsonApiHandler {
	h := &JsonApiHandler{
		cfg:     cfg,
		bot:     b,
		catalog: catalog,
		logger:  logger,
	}
	h.methods = map[string]apiMethodFunc{
		"ping":          h.ping,
		"login":         h.login,
		"getCatalog":    h.getCatalog,
		"search":        h.search,
		"requestPhotos": h.requestPhotos,
		"confirmPhotos": h.confirmPhotos,
		"cancelPhotos":  h.cancelPhotos,
		"list":          h.list,
		"edit":          h.edit,
		"report":        h.report,
		"buy":           h.buy,
	}
	return h
}

// HandleRequest is the main entry point for POST /v1/api
func (h *JsonApiHandler) HandleRequest(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.sendErrorResponse(c, "Failed to read request body")
		return
	}

	var req JsonApiRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		h.sendErrorResponse(c, "Invalid JSON request format")
		return
	}

	handlerFunc, ok := h.methods[req.Method]
	if !ok {
		h.sendErrorResponse(c, fmt.Sprintf("Unknown method: %s", req.Method))
		return
	}

	if authErr := h.checkAuthForMethod(c, req.Method); authErr != nil {
		h.sendErrorResponse(c, authErr.Message)
		return
	}

	result, apiErr := handlerFunc(c, req.Arguments)
	if apiErr != nil {
		h.sendErrorResponse(c, apiErr.Message)
		return
	}
	h.sendSuccessResponse(c, result)
}

// AuthResult holds the caller's token details.
type AuthResult struct {
	Subject string
	IsAdmin bool
}

// checkAuthForMethod validates the bearer token when the method needs one
// and stores the AuthResult in the request context.
func (h *JsonApiHandler) checkAuthForMethod(c *gin.Context, method string) *ApiError {
	if !h.methodRequiresAuth(method) {
		return nil
	}

	tokenString, err := middleware.BearerToken(c.GetHeader("Authorization"))
	if err != nil {
		return NewApiError(err.Error())
	}
	claims, err := auth.ValidateJWT(tokenString, h.cfg.JwtSecret)
	if err != nil {
		h.logger.Debug("Token validation failed", zap.String("method", method), zap.Error(err))
		return NewApiError(fmt.Sprintf("Invalid or expired token: %v", err))
	}

	authRes := &AuthResult{Subject: claims.Subject, IsAdmin: claims.IsAdmin}
	ctx := context.WithValue(c.Request.Context(), authResultKey, authRes)
	c.Request = c.Request.WithContext(ctx)
	return nil
}

// methodRequiresAuth checks if a given API method requires authentication.
func (h *JsonApiHandler) methodRequiresAuth(method string) bool {
	switch method {
	case "ping", "login", "getCatalog":
		return false
	default:
		return true
	}
}

func (h *JsonApiHandler) sendSuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, JsonApiResponse{Success: true, Data: data})
}

func (h *JsonApiHandler) sendErrorResponse(c *gin.Context, message string) {
	c.JSON(http.StatusOK, JsonApiResponse{Success: false, Error: message})
}

type ApiError struct {
	Message string
}

func (e *ApiError) Error() string {
	return e.Message
}

func NewApiError(message string) *ApiError {
	return &ApiError{Message: message}
}

// parseRequiredSingleArgFromArray decodes the first element of an
// "arguments" array into targetVarPtr.
func parseRequiredSingleArgFromArray(rawArgPayload json.RawMessage, targetVarPtr interface{}) *ApiError {
	if rawArgPayload == nil {
		return NewApiError("Missing 'arguments' field; expected a JSON array with one argument.")
	}
	var argArray []json.RawMessage
	if err := json.Unmarshal(rawArgPayload, &argArray); err != nil {
		return NewApiError("Invalid 'arguments': expected a JSON array.")
	}
	if len(argArray) == 0 {
		return NewApiError("Invalid 'arguments': array is empty, but one argument is expected.")
	}
	if err := json.Unmarshal(argArray[0], targetVarPtr); err != nil {
		return NewApiError("Invalid format for argument: the first element in 'arguments' array has unexpected structure.")
	}
	return nil
}

// --- public methods ---

func (h *JsonApiHandler) ping(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	return "pong", nil
}

type LoginArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *JsonApiHandler) login(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs LoginArgs
	if apiErr := parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	if reqArgs.Username != h.cfg.AdminUsername || !auth.CheckPasswordHash(reqArgs.Password, h.cfg.AdminPasswordHash) {
		h.logger.Warn("Failed admin login", zap.String("username", reqArgs.Username), zap.String("client_ip", c.ClientIP()))
		return nil, NewApiError("invalid_credentials")
	}

	token, err := auth.GenerateJWT(reqArgs.Username, true, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		h.logger.Error("Failed to issue admin token", zap.Error(err))
		return nil, NewApiError("Failed to issue token")
	}
	return gin.H{"token": token}, nil
}

func (h *JsonApiHandler) getCatalog(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	return gin.H{
		"suburbs": h.catalog.Suburbs(),
		"bundles": h.catalog.Bundles(),
	}, nil
}

// --- actions ---

// ActionArgs carries every action's arguments; each method reads the fields it needs.
type ActionArgs struct {
	Phone     string `json:"phone"`
	Query     string `json:"query,omitempty"`
	ListingID string `json:"listing_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Field     string `json:"field,omitempty"`
	Value     string `json:"value,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Product   string `json:"product,omitempty"`
}

func parseAction(args json.RawMessage) (ActionArgs, *ApiError) {
	var reqArgs ActionArgs
	if apiErr := parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return reqArgs, apiErr
	}
	reqArgs.Phone = utils.NormalizePhone(reqArgs.Phone)
	if !utils.ValidPhone(reqArgs.Phone) {
		return reqArgs, NewApiError("invalid_phone")
	}
	return reqArgs, nil
}

// dispatch hands a synthesized command to the bot.
func (h *JsonApiHandler) dispatch(c *gin.Context, phone string, cmd bot.Command, rest string) (interface{}, *ApiError) {
	in := bot.NewInbound(phone, cmd, rest)
	if authInfo, ok := getAuthFromContext(c.Request.Context()); ok {
		h.logger.Info("Action via API",
			zap.String("subject", authInfo.Subject),
			zap.String("command", cmd.String()),
			observability.Phone(phone))
	}
	if err := h.bot.Handle(c.Request.Context(), in); err != nil {
		return nil, NewApiError("Request failed")
	}
	return "accepted", nil
}

func (h *JsonApiHandler) search(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	return h.dispatch(c, a.Phone, bot.CommandSearch, a.Query)
}

func (h *JsonApiHandler) requestPhotos(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	if strings.TrimSpace(a.ListingID) == "" {
		return nil, NewApiError("Missing required argument (listing_id)")
	}
	return h.dispatch(c, a.Phone, bot.CommandPhotos, a.ListingID)
}

func (h *JsonApiHandler) confirmPhotos(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	return h.dispatch(c, a.Phone, bot.CommandYes, "")
}

func (h *JsonApiHandler) cancelPhotos(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	return h.dispatch(c, a.Phone, bot.CommandNo, "")
}

func (h *JsonApiHandler) list(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	return h.dispatch(c, a.Phone, bot.CommandList, a.Text)
}

func (h *JsonApiHandler) edit(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	if a.ListingID == "" || a.Field == "" || a.Value == "" {
		return nil, NewApiError("Missing required arguments (listing_id, field, value)")
	}
	return h.dispatch(c, a.Phone, bot.CommandEdit, strings.Join([]string{a.ListingID, a.Field, a.Value}, " "))
}

func (h *JsonApiHandler) report(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	if strings.TrimSpace(a.ListingID) == "" {
		return nil, NewApiError("Missing required argument (listing_id)")
	}
	return h.dispatch(c, a.Phone, bot.CommandReport, strings.TrimSpace(a.ListingID+" "+a.Reason))
}

func (h *JsonApiHandler) buy(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	a, apiErr := parseAction(args)
	if apiErr != nil {
		return nil, apiErr
	}
	return h.dispatch(c, a.Phone, bot.CommandBuy, a.Product)
}
