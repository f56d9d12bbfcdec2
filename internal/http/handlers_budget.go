package http

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type createBudgetRequest struct {
	Name     string `json:"name"`
	Activate *bool  `json:"activate,omitempty"`
}

type switchBudgetRequest struct {
	ID string `json:"id"`
}

type incomeRequest struct {
	Income decimal.Decimal `json:"income"`
}

// handleGetBudget returns the session view: active budget, its summary and
// the budget selector entries.
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, us.View())
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	v := us.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"activeBudgetId": v.ActiveBudgetID,
		"budgets":        v.Budgets,
	})
}

// handleCreateBudget creates a budget from the template. It becomes active
// unless activate is false.
func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req createBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	activate := req.Activate == nil || *req.Activate
	id, err := us.CreateBudget(r.Context(), sanitizeInput(req.Name), activate)
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "view": us.View()})
}

func (s *Server) handleSwitchBudget(w http.ResponseWriter, r *http.Request) {
	var req switchBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := us.SwitchActiveBudget(r.Context(), req.ID); err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, us.View())
}

// handleDeleteBudget deletes the active budget. Requires confirm=true.
func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	r = withConfirmation(r)
	if err := us.DeleteActiveBudget(r.Context()); err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, us.View())
}

func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := us.SetIncome(r.Context(), req.Income); err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, us.View())
}
