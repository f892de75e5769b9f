package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"assistify/internal/domain"
	"assistify/internal/usecase"
)

type chatResponse struct {
	Chat domain.Chat `json:"chat"`
}

// addConversationRequest keeps loosely typed fields so a non-string question
// is reported as invalid input rather than a decode failure.
type addConversationRequest struct {
	Question     any    `json:"question"`
	Answer       any    `json:"answer"`
	SystemPrompt string `json:"systemPrompt"`
}

type addConversationResponse struct {
	Message      string              `json:"message"`
	Conversation domain.Conversation `json:"conversation"`
	UpdatedChat  domain.Chat         `json:"updatedChat"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// POST /chat/new
func (s *Server) createChat(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	chat, err := s.chats.CreateChat(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, chatResponse{Chat: chat})
}

// GET /chat/all
func (s *Server) listChats(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	chats, err := s.chats.ListChats(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	return c.JSON(http.StatusOK, chats)
}

// POST /chat/:id
func (s *Server) addConversation(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req addConversationRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput("invalid request body")
	}
	question, ok := req.Question.(string)
	if !ok {
		return invalidInput("question is required and must be a non-empty string")
	}
	var answer string
	if req.Answer != nil {
		if answer, ok = req.Answer.(string); !ok {
			return invalidInput("answer must be a string")
		}
	}

	out, err := s.chats.AddConversation(c.Request().Context(), usecase.AddConversationInput{
		UserID:       user.ID,
		ChatID:       c.Param("id"),
		Question:     question,
		Answer:       answer,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, addConversationResponse{
		Message:      "Conversation added successfully",
		Conversation: out.Conversation,
		UpdatedChat:  out.Chat,
	})
}

// GET /chat/:id?limit=&skip=
func (s *Server) listConversations(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	skip, err := queryInt(c, "skip")
	if err != nil {
		return err
	}
	convs, err := s.chats.ListConversations(c.Request().Context(), usecase.ListConversationsInput{
		UserID: user.ID,
		ChatID: c.Param("id"),
		Limit:  limit,
		Skip:   skip,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convs)
}

// DELETE /chat/:id
func (s *Server) deleteChat(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.chats.DeleteChat(c.Request().Context(), user.ID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Chat and its conversations deleted successfully"})
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalidInput(name + " must be a non-negative integer")
	}
	return n, nil
}
