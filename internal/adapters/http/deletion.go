package httpadapter

import (
	"net/http"
)

func (rt *Router) requestDeletion(w http.ResponseWriter, r *http.Request) {
	prompt, err := rt.services.Deletions.RequestDeletion(r.Context(), ownerFromContext(r.Context()), r.PathValue("documentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, prompt)
}

func (rt *Router) confirmDeletion(w http.ResponseWriter, r *http.Request) {
	outcome, err := rt.services.Deletions.Confirm(r.Context(), ownerFromContext(r.Context()), r.PathValue("token"))
	if err != nil {
		if outcome != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), outcome)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) cancelDeletion(w http.ResponseWriter, r *http.Request) {
	if err := rt.services.Deletions.Cancel(ownerFromContext(r.Context()), r.PathValue("token")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
