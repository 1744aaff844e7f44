// Package server exposes the HTTP surface: account endpoints, project and
// document resources, comment listing, and the realtime relay socket.
//
// Document snapshots cross this surface as opaque bytes. The server validates
// size, never content; decoding the replicated state is the client's job.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codereef-labs/codereef/backend/internal/comments"
	"github.com/codereef-labs/codereef/backend/internal/documents"
	"github.com/codereef-labs/codereef/backend/internal/projects"
	"github.com/codereef-labs/codereef/backend/internal/users"
)

const userIDContextKey = "codereef_user_id"

var (
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingAccountService  = errors.New("account service dependency required")
	errMissingProjectService  = errors.New("project service dependency required")
	errMissingDocumentService = errors.New("document service dependency required")
	errMissingCommentService  = errors.New("comment service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the bearer tokens guarding the API.
type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies collects everything the HTTP handler is wired from.
type Dependencies struct {
	TokenManager    TokenManager
	AccountService  *users.Service
	ProjectService  *projects.Service
	DocumentService *documents.Service
	CommentService  *comments.Service
	RealtimeHandler http.Handler
	ClientOrigin    string
	Logger          *zap.Logger
}

// NewHTTPHandler assembles the gin router from its dependencies.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.AccountService == nil {
		return nil, errMissingAccountService
	}
	if deps.ProjectService == nil {
		return nil, errMissingProjectService
	}
	if deps.DocumentService == nil {
		return nil, errMissingDocumentService
	}
	if deps.CommentService == nil {
		return nil, errMissingCommentService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allowOrigins := []string{"*"}
	if strings.TrimSpace(deps.ClientOrigin) != "" {
		allowOrigins = []string{deps.ClientOrigin}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		accounts:  deps.AccountService,
		projects:  deps.ProjectService,
		documents: deps.DocumentService,
		comments:  deps.CommentService,
		logger:    logger,
	}

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)
	api.POST("/auth/register", handler.handleRegister)
	api.POST("/auth/login", handler.handleLogin)

	if deps.RealtimeHandler != nil {
		api.GET("/ws", gin.WrapH(deps.RealtimeHandler))
	}

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/projects", handler.handleCreateProject)
	protected.GET("/projects", handler.handleListProjects)
	protected.GET("/projects/:projectId", handler.handleGetProject)
	protected.DELETE("/projects/:projectId", handler.handleDeleteProject)
	protected.POST("/documents", handler.handleCreateDocument)
	protected.GET("/documents/project/:projectId", handler.handleListDocuments)
	protected.GET("/documents/:documentId", handler.handleGetDocument)
	protected.PUT("/documents/:documentId", handler.handleSaveSnapshot)
	protected.POST("/comments", handler.handleCreateComment)
	protected.GET("/comments/document/:documentId", handler.handleListComments)

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	accounts  *users.Service
	projects  *projects.Service
	documents *documents.Service
	comments  *comments.Service
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerRequestPayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountPayload struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type authResponsePayload struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	TokenType   string         `json:"token_type"`
	User        accountPayload `json:"user"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), request.Email, request.DisplayName, request.Password)
	if errors.Is(err, users.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
		return
	}
	if errors.Is(err, users.ErrInvalidEmail) || errors.Is(err, users.ErrInvalidDisplayName) || errors.Is(err, users.ErrWeakPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("account registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	h.respondWithToken(c, http.StatusCreated, account)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.accounts.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}
	if err != nil {
		h.logger.Error("account authentication failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	h.respondWithToken(c, http.StatusOK, account)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, account users.Account) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), account.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(status, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User: accountPayload{
			UserID:      account.UserID,
			Email:       account.Email,
			DisplayName: account.DisplayName,
		},
	})
}

type createProjectRequestPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type projectPayload struct {
	ProjectID        string `json:"project_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
}

func toProjectPayload(project projects.Project) projectPayload {
	return projectPayload{
		ProjectID:        project.ProjectID,
		Name:             project.Name,
		Description:      project.Description,
		CreatedAtSeconds: project.CreatedAtSeconds,
		UpdatedAtSeconds: project.UpdatedAtSeconds,
	}
}

func (h *httpHandler) handleCreateProject(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request createProjectRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	project, err := h.projects.Create(c.Request.Context(), userID, request.Name, request.Description)
	if errors.Is(err, projects.ErrInvalidName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("project create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project_create_failed"})
		return
	}

	c.JSON(http.StatusCreated, toProjectPayload(project))
}

func (h *httpHandler) handleListProjects(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	records, err := h.projects.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("project list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project_list_failed"})
		return
	}

	response := make([]projectPayload, 0, len(records))
	for _, record := range records {
		response = append(response, toProjectPayload(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetProject(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	projectID, err := projects.NewProjectID(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_project_id"})
		return
	}

	project, err := h.projects.Get(c.Request.Context(), userID, projectID)
	if errors.Is(err, projects.ErrNotFound) || errors.Is(err, projects.ErrNotOwner) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("project get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project_get_failed"})
		return
	}

	c.JSON(http.StatusOK, toProjectPayload(project))
}

func (h *httpHandler) handleDeleteProject(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	projectID, err := projects.NewProjectID(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_project_id"})
		return
	}

	err = h.projects.Delete(c.Request.Context(), userID, projectID)
	if errors.Is(err, projects.ErrNotFound) || errors.Is(err, projects.ErrNotOwner) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("project delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project_delete_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

type createDocumentRequestPayload struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
}

type documentSummaryPayload struct {
	DocumentID       string `json:"document_id"`
	ProjectID        string `json:"project_id"`
	Title            string `json:"title"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
}

type documentPayload struct {
	documentSummaryPayload
	// Snapshot is the stored replicated-state encoding, base64 in JSON and
	// null for documents that have never been saved.
	Snapshot []byte `json:"snapshot"`
}

func toDocumentSummaryPayload(document documents.Document) documentSummaryPayload {
	return documentSummaryPayload{
		DocumentID:       document.DocumentID,
		ProjectID:        document.ProjectID,
		Title:            document.Title,
		CreatedAtSeconds: document.CreatedAtSeconds,
		UpdatedAtSeconds: document.UpdatedAtSeconds,
	}
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request createDocumentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	projectID, err := projects.NewProjectID(request.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_project_id"})
		return
	}
	if !h.requireProject(c, userID, projectID) {
		return
	}

	document, err := h.documents.Create(c.Request.Context(), request.Title, projectID.String())
	if errors.Is(err, documents.ErrInvalidTitle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("document create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "document_create_failed"})
		return
	}

	c.JSON(http.StatusCreated, toDocumentSummaryPayload(document))
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	projectID, err := projects.NewProjectID(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_project_id"})
		return
	}
	if !h.requireProject(c, userID, projectID) {
		return
	}

	records, err := h.documents.ListByProject(c.Request.Context(), projectID.String())
	if err != nil {
		h.logger.Error("document list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "document_list_failed"})
		return
	}

	response := make([]documentSummaryPayload, 0, len(records))
	for _, record := range records {
		response = append(response, toDocumentSummaryPayload(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	documentID, err := documents.NewDocumentID(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	document, err := h.documents.Get(c.Request.Context(), documentID)
	if errors.Is(err, documents.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("document get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "document_get_failed"})
		return
	}

	c.JSON(http.StatusOK, documentPayload{
		documentSummaryPayload: toDocumentSummaryPayload(document),
		Snapshot:               document.Snapshot,
	})
}

func (h *httpHandler) handleSaveSnapshot(c *gin.Context) {
	documentID, err := documents.NewDocumentID(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	snapshot, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.documents.SnapshotLimitBytes()+1))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot_too_large"})
		return
	}
	if len(snapshot) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_snapshot"})
		return
	}

	err = h.documents.SaveSnapshot(c.Request.Context(), documentID, snapshot)
	if errors.Is(err, documents.ErrPayloadTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot_too_large"})
		return
	}
	if errors.Is(err, documents.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("snapshot save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_save_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

type createCommentRequestPayload struct {
	DocumentID string `json:"document_id"`
	LineNumber int    `json:"line_number"`
	Text       string `json:"text"`
}

type commentPayload struct {
	CommentID        string `json:"comment_id"`
	DocumentID       string `json:"document_id"`
	AuthorID         string `json:"author_id"`
	AuthorName       string `json:"author_name"`
	AuthorEmail      string `json:"author_email"`
	LineNumber       int    `json:"line_number"`
	Text             string `json:"text"`
	Resolved         bool   `json:"resolved"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func toCommentPayload(comment comments.Comment, author users.Account) commentPayload {
	return commentPayload{
		CommentID:        comment.CommentID,
		DocumentID:       comment.DocumentID,
		AuthorID:         comment.AuthorID,
		AuthorName:       author.DisplayName,
		AuthorEmail:      author.Email,
		LineNumber:       comment.LineNumber,
		Text:             comment.Text,
		Resolved:         comment.Resolved,
		CreatedAtSeconds: comment.CreatedAtSeconds,
	}
}

// lookupAuthor resolves a comment author, memoized per request. A comment
// whose account has since disappeared keeps its author_id with blank
// name/email fields.
func (h *httpHandler) lookupAuthor(c *gin.Context, cache map[string]users.Account, authorID string) users.Account {
	if account, ok := cache[authorID]; ok {
		return account
	}
	account, err := h.accounts.Get(c.Request.Context(), authorID)
	if err != nil && !errors.Is(err, users.ErrAccountNotFound) {
		h.logger.Warn("comment author lookup failed", zap.Error(err), zap.String("author_id", authorID))
	}
	cache[authorID] = account
	return account
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request createCommentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	documentID, err := documents.NewDocumentID(request.DocumentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	if _, err := h.documents.Get(c.Request.Context(), documentID); errors.Is(err, documents.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_found"})
		return
	} else if err != nil {
		h.logger.Error("document lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comment_create_failed"})
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), documentID.String(), userID, request.LineNumber, request.Text)
	if errors.Is(err, comments.ErrInvalidLineNumber) || errors.Is(err, comments.ErrInvalidText) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("comment create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comment_create_failed"})
		return
	}

	author := h.lookupAuthor(c, map[string]users.Account{}, comment.AuthorID)
	c.JSON(http.StatusCreated, toCommentPayload(comment, author))
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	documentID, err := documents.NewDocumentID(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	records, err := h.comments.ListByDocument(c.Request.Context(), documentID.String())
	if err != nil {
		h.logger.Error("comment list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comment_list_failed"})
		return
	}

	authors := make(map[string]users.Account, len(records))
	response := make([]commentPayload, 0, len(records))
	for _, record := range records {
		response = append(response, toCommentPayload(record, h.lookupAuthor(c, authors, record.AuthorID)))
	}
	c.JSON(http.StatusOK, response)
}

// requireProject responds for the caller when the project is missing or not
// theirs; it reports whether the handler may continue.
func (h *httpHandler) requireProject(c *gin.Context, userID string, projectID projects.ProjectID) bool {
	_, err := h.projects.Get(c.Request.Context(), userID, projectID)
	if errors.Is(err, projects.ErrNotFound) || errors.Is(err, projects.ErrNotOwner) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project_not_found"})
		return false
	}
	if err != nil {
		h.logger.Error("project lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project_lookup_failed"})
		return false
	}
	return true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
