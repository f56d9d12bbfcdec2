package http

import (
	"net/http"

	"homebudget/internal/core"
)

type nameRequest struct {
	Name string `json:"name"`
}

type subcategoryRequest struct {
	CategoryIDs []string `json:"categoryIds"`
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var in core.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	if in.Date == "" {
		in.Date = core.Today(s.now())
	}
	tx, err := us.AddTransaction(r.Context(), in)
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var in core.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	tx, err := us.UpdateTransaction(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := us.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, us, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateCategory adds a category; any id in the body is replaced by a
// generated one.
func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	c.ID = ""
	s.saveCategory(w, r, c, http.StatusCreated)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	c.ID = r.PathValue("id")
	s.saveCategory(w, r, c, http.StatusOK)
}

func (s *Server) saveCategory(w http.ResponseWriter, r *http.Request, c core.Category, status int) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	c.Name = sanitizeInput(c.Name)
	saved, err := us.SaveCategory(r.Context(), c)
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, status, saved)
}

// handleDeleteCategory removes a category; its transactions stay. Requires
// confirm=true.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	r = withConfirmation(r)
	if err := us.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, us, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddType(w http.ResponseWriter, r *http.Request) {
	s.nameOp(w, r, func(us *userSession, name string) error { return us.AddType(r.Context(), name) })
}

func (s *Server) handleRemoveType(w http.ResponseWriter, r *http.Request) {
	s.nameOp(w, r, func(us *userSession, name string) error { return us.RemoveType(r.Context(), name) })
}

func (s *Server) handleAddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	s.nameOp(w, r, func(us *userSession, name string) error { return us.AddPaymentMethod(r.Context(), name) })
}

func (s *Server) handleRemovePaymentMethod(w http.ResponseWriter, r *http.Request) {
	s.nameOp(w, r, func(us *userSession, name string) error { return us.RemovePaymentMethod(r.Context(), name) })
}

// nameOp runs a list mutation taking a single name from the body and
// answers with the updated view.
func (s *Server) nameOp(w http.ResponseWriter, r *http.Request, op func(us *userSession, name string) error) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := op(us, sanitizeInput(req.Name)); err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, us.View())
}

func (s *Server) handleSetSubcategory(w http.ResponseWriter, r *http.Request) {
	var req subcategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := us.SetSubcategory(r.Context(), sanitizeInput(r.PathValue("label")), req.CategoryIDs); err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, us.View())
}

func (s *Server) handleRemoveSubcategory(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := us.RemoveSubcategory(r.Context(), r.PathValue("label")); err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, us.View())
}
