package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shahcompbio/montage-sub000/pkg/editor"
)

type fieldEdit struct {
	Values []string `json:"values"`
}

type stepRequest struct {
	NodeType string              `json:"nodeType"`
	Values   map[string][]string `json:"values"`
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Nodes())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	n, err := s.editor.Node(pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleFieldset(w http.ResponseWriter, r *http.Request) {
	fs, err := s.editor.Fieldset(pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fs.Ordered())
}

func (s *Server) handleEditField(w http.ResponseWriter, r *http.Request) {
	var req fieldEdit
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.editor.EditField(r.Context(), pathID(r, "id"), mux.Vars(r)["field"], req.Values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cascade, err := queryBool(q.Get("cascade"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	keep, err := queryBool(q.Get("keepCurrentTab"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.editor.DeleteNode(r.Context(), pathID(r, "id"), cascade, keep)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean", errBadRequest, v)
	}
	return b, nil
}

func (s *Server) handleBeginStructure(w http.ResponseWriter, r *http.Request) {
	var selected int64
	if v := r.URL.Query().Get("selected"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: selected %q", errBadRequest, v))
			return
		}
		selected = id
	}
	if err := s.editor.BeginStructure(mux.Vars(r)["name"], selected); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.editor.Staged())
}

func (s *Server) handleStaged(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Staged())
}

func (s *Server) handleStepFieldset(w http.ResponseWriter, r *http.Request) {
	step := int(pathID(r, "step"))
	fs, err := s.editor.StructureFieldset(step, r.URL.Query().Get("nodeType"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fs.Ordered())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.editor.Advance(r.Context(), int(pathID(r, "step")), req.NodeType, req.Values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.editor.Retreat(r.Context(), int(pathID(r, "step")), req.NodeType, req.Values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	res, err := s.editor.Commit(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLinkExisting(w http.ResponseWriter, r *http.Request) {
	res, err := s.editor.LinkExistingView(r.Context(), int(pathID(r, "step")), pathID(r, "viewID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiscardStructure(w http.ResponseWriter, r *http.Request) {
	s.editor.DiscardStructure()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	h, err := s.editor.Select(pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleUnselect(w http.ResponseWriter, r *http.Request) {
	s.editor.Unselect()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Diagram())
}

func (s *Server) handleGetPortrait(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Serialize())
}

func (s *Server) handlePutPortrait(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.restore(w, r, body)
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request, body []byte) {
	p, err := editor.UnmarshalPortrait(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.editor.Restore(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editor.Diagram())
}

var errStorageDisabled = errors.New("portrait storage is disabled")

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.portraits == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errStorageDisabled.Error()})
		return false
	}
	return true
}

func (s *Server) handleListPortraits(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	list, err := s.portraits.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleLoadPortrait(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	body, err := s.portraits.Load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleSavePortrait stores the current portrait under name.
func (s *Server) handleSavePortrait(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	body, err := s.editor.MarshalPortrait()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.portraits.Save(r.Context(), mux.Vars(r)["name"], body); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePortrait(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.portraits.Delete(r.Context(), mux.Vars(r)["name"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestorePortrait replaces the editor's portrait with a stored one.
func (s *Server) handleRestorePortrait(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	body, err := s.portraits.Load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.restore(w, r, body)
}
