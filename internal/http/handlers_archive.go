package http

import (
	"net/http"

	"homebudget/internal/core"
	"homebudget/internal/forecast"
)

// handleArchiveMonth snapshots the active budget under the current period and
// resets it. Requires confirm=true.
func (s *Server) handleArchiveMonth(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	r = withConfirmation(r)
	period, err := us.ArchiveMonth(r.Context())
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"period": period, "view": us.View()})
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	periods, err := us.ArchivePeriods(r.Context())
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := us.Archive(r.Context(), r.PathValue("period"))
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archive": snap, "summary": core.Summarize(snap.Budget)})
}

// handleDeleteArchive removes one archived month. Requires confirm=true.
func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	r = withConfirmation(r)
	if err := us.DeleteArchive(r.Context(), r.PathValue("period")); err != nil {
		s.fail(w, r, us, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	archives, err := us.Archives(r.Context())
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": forecast.History(archives)})
}

// handleForecast projects every category of the active budget from its
// archives, or only the one named by the category query parameter.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	b, err := us.Current()
	if err != nil {
		s.fail(w, r, us, err)
		return
	}
	archives, err := us.Archives(r.Context())
	if err != nil {
		s.fail(w, r, us, err)
		return
	}

	var categories []forecast.Category
	if id := r.URL.Query().Get("category"); id != "" {
		f, err := forecast.CategoryForecast(archives, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if i := b.CategoryIndex(id); i >= 0 {
			f.Name = b.Categories[i].Name
		}
		categories = []forecast.Category{f}
	} else {
		categories = forecast.Forecasts(archives, b)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"periodEnd":  forecast.ProjectPeriodEnd(b, s.now()),
	})
}
