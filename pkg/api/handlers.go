package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hsterling/chronoview/pkg/message"
	"github.com/hsterling/chronoview/pkg/service"
)

// Server handles queue API requests over one loaded message service.
type Server struct {
	svc     *service.Service
	metrics *Metrics
}

// NewServer creates a server over a loaded service.
func NewServer(svc *service.Service, metrics *Metrics) *Server {
	return &Server{svc: svc, metrics: metrics}
}

// queueInfoView is the JSON form of queue header information.
type queueInfoView struct {
	StartIndex int64  `json:"start_index"`
	RollCycle  string `json:"roll_cycle"`
	Epoch      int64  `json:"epoch"`
	SourceID   int64  `json:"source_id"`
	Messages   int    `json:"messages"`
}

// fieldView is the JSON form of one decoded field.
type fieldView struct {
	Name   string      `json:"name"`
	Type   string      `json:"type,omitempty"`
	Value  string      `json:"value,omitempty"`
	Fields []fieldView `json:"fields,omitempty"`
}

// messageView is the JSON form of one decoded message.
type messageView struct {
	Index     int64       `json:"index"`
	Offset    int64       `json:"offset"`
	Kind      string      `json:"kind"`
	TypeName  string      `json:"type,omitempty"`
	Fields    []fieldView `json:"fields"`
	DecodeErr string      `json:"decode_error,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
}

func viewOf(m *message.Message) messageView {
	v := messageView{
		Index:    m.Index,
		Offset:   m.Offset,
		Kind:     m.Kind.String(),
		TypeName: m.TypeName,
		Fields:   fieldViews(m.Fields),
		Warnings: m.Warnings,
	}
	if m.DecodeErr != nil {
		v.DecodeErr = m.DecodeErr.Error()
	}
	return v
}

func fieldViews(fields []message.Field) []fieldView {
	out := make([]fieldView, 0, len(fields))
	for _, f := range fields {
		fv := fieldView{Name: f.Name, Type: f.DeclaredType}
		if nested, ok := f.Value.(message.Nested); ok && nested.Msg != nil {
			fv.Fields = fieldViews(nested.Msg.Fields)
			fv.Value = nested.Msg.TypeName
		} else {
			fv.Value = f.Value.String()
		}
		out = append(out, fv)
	}
	return out
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "ok"})
}

// handleQueueInfo returns header information for the open queue.
func (s *Server) handleQueueInfo(w http.ResponseWriter, r *http.Request) {
	info := s.svc.QueueInfo()
	sendSuccess(w, queueInfoView{
		StartIndex: info.StartIndex,
		RollCycle:  info.RollCycle,
		Epoch:      info.Epoch,
		SourceID:   info.SourceID,
		Messages:   s.svc.Count(),
	})
}

// handleMessages returns a page of messages: ?start=N&limit=N.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > 1000 {
		sendError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
		return
	}

	page := s.svc.Page(start, limit)
	views := make([]messageView, 0, len(page))
	for _, m := range page {
		views = append(views, viewOf(m))
	}
	s.metrics.RecordMessagesServed(len(views))
	sendSuccess(w, views)
}

// handleMessage returns a single message by queue index.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseInt(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		sendError(w, "invalid message index", http.StatusBadRequest)
		return
	}
	m, err := s.svc.MessageAt(index)
	if err != nil {
		sendError(w, err.Error(), http.StatusNotFound)
		return
	}
	s.metrics.RecordMessagesServed(1)
	sendSuccess(w, viewOf(m))
}

// handleSearch matches messages by flattened field value or free text:
// ?field=a.b&value=x, or ?q=text.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	q := r.URL.Query().Get("q")

	var hits []*message.Message
	switch {
	case field != "" && value != "":
		hits = s.svc.SearchField(field, value)
	case q != "":
		hits = s.svc.SearchText(q)
	default:
		sendError(w, "provide field and value, or q", http.StatusBadRequest)
		return
	}

	views := make([]messageView, 0, len(hits))
	for _, m := range hits {
		views = append(views, viewOf(m))
	}
	s.metrics.RecordMessagesServed(len(views))
	sendSuccess(w, views)
}

// handleStats summarizes the loaded queue.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Stats()
	s.metrics.UpdateQueueStats(stats.Count, stats.DecodeErrors)
	sendSuccess(w, stats)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
