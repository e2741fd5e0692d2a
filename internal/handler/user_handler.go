package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/validation"
)

// UserCoordinator defines the operations UserHandler needs from the user
// lifecycle coordinator.
type UserCoordinator interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	Update(ctx context.Context, id int64, patch models.UserPatch) (models.UserView, error)
	Get(ctx context.Context, id int64) (models.UserView, error)
	List(ctx context.Context) ([]models.UserView, error)
	Delete(ctx context.Context, id int64) (models.User, error)
}

type UserHandler struct {
	users UserCoordinator
}

func NewUserHandler(users UserCoordinator) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	ID        int64           `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Password  string          `json:"password" validate:"required,min=4"`
	Email     string          `json:"email" validate:"required,email"`
	Phone     string          `json:"phone" validate:"required"`
	BirthDate time.Time       `json:"birthDate" validate:"required"`
	Balance   decimal.Decimal `json:"balance"`
}

type updateUserRequest struct {
	Name      *string    `json:"name"`
	Password  *string    `json:"password"`
	Email     *string    `json:"email" validate:"omitempty,email"`
	Phone     *string    `json:"phone"`
	BirthDate *time.Time `json:"birthDate"`
}

func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	if fieldErrs := validation.CheckRequest(req); fieldErrs != nil {
		respondValidationErrors(c, fieldErrs)
		return
	}

	user, err := h.users.Create(c.Request.Context(), models.User{
		ID:        req.ID,
		Name:      req.Name,
		Password:  req.Password,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
		Balance:   req.Balance,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user.View())
}

func (h *UserHandler) Get(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	view, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) List(c *gin.Context) {
	views, err := h.users.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *UserHandler) Update(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	if fieldErrs := validation.CheckRequest(req); fieldErrs != nil {
		respondValidationErrors(c, fieldErrs)
		return
	}

	view, err := h.users.Update(c.Request.Context(), userID, models.UserPatch{
		Name:      req.Name,
		Password:  req.Password,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete cascades over the user's records and returns the tombstone with
// its pre-cascade balance.
func (h *UserHandler) Delete(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	tombstone, err := h.users.Delete(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tombstone.View())
}
