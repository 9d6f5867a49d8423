package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"pervious-predictor/internal/ml"
	"pervious-predictor/internal/schema"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PredictRequest is the JSON body of the predict endpoint. Exactly one of
// Features (form values keyed by feature name, enums as labels) or Vector
// (already encoded, in schema order) must be set.
type PredictRequest struct {
	Features map[string]interface{} `json:"features,omitempty"`
	Vector   []float64              `json:"vector,omitempty"`
}

// PredictResponse is the JSON result of one prediction.
type PredictResponse struct {
	RequestID       string          `json:"request_id"`
	Variant         string          `json:"variant"`
	Value           float64         `json:"value"`
	Formatted       string          `json:"formatted"`
	Unit            string          `json:"unit"`
	Explanation     *ml.Explanation `json:"explanation"`
	Plot            string          `json:"plot,omitempty"`
	PlotContentType string          `json:"plot_content_type,omitempty"`
	LatencyMS       float64         `json:"latency_ms"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ErrorResponse is returned with every non-2xx API status.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
}

type variantHealth struct {
	Loaded          bool    `json:"loaded"`
	Error           string  `json:"error,omitempty"`
	Features        int     `json:"features"`
	ModelSHA256     string  `json:"model_sha256,omitempty"`
	ModelAgeSeconds float64 `json:"model_age_seconds,omitempty"`
}

type healthStatus struct {
	Status   string                   `json:"status"`
	Variants map[string]variantHealth `json:"variants"`
}

type variantLink struct {
	Name   string
	Title  string
	Target string
	Unit   string
	Loaded bool
	Error  string
}

type indexPage struct {
	Title    string
	Variants []variantLink
}

type fieldView struct {
	ID      string
	Name    string
	Label   string
	Enum    bool
	Value   string
	Step    string
	Min     string
	Options []string
}

type resultView struct {
	Target        string
	Formatted     string
	Unit          string
	BaseValue     string
	PlotURI       template.URL
	Contributions []ml.Contribution
}

type formPage struct {
	Title    string
	Variant  string
	Fields   []fieldView
	Disabled bool
	Error    string
	Result   *resultView
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := indexPage{Title: appTitle}
	for _, name := range s.order {
		v := s.variants[name]
		link := variantLink{
			Name:   name,
			Title:  v.Schema.Title,
			Target: v.Schema.Target.Name,
			Unit:   v.Schema.Target.Unit,
			Loaded: v.Loaded(),
		}
		if !v.Loaded() {
			link.Error = ml.UserMessage(v.Err)
		}
		page.Variants = append(page.Variants, link)
	}
	s.render(w, http.StatusOK, "index.html", page)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	v, ok := s.variant(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	page := newFormPage(v, v.Schema.Defaults())
	s.render(w, http.StatusOK, "form.html", page)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	v, ok := s.variant(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("invalid form: %v", err), http.StatusBadRequest)
		return
	}

	values := v.Schema.Defaults()
	submitted := make(map[string]string, len(values))
	for name := range values {
		if raw, ok := r.PostForm[name]; ok && len(raw) > 0 {
			values[name] = raw[0]
			submitted[name] = raw[0]
		}
	}

	page := newFormPage(v, values)
	if page.Disabled {
		s.render(w, http.StatusServiceUnavailable, "form.html", page)
		return
	}

	vec, err := v.Schema.Vector(submitted)
	if err != nil {
		page.Error = err.Error()
		s.render(w, statusFor(err), "form.html", page)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	res, err := v.Pipeline.Run(ctx, vec)
	if err != nil {
		log.Error().Err(err).Str("variant", v.Name).Msg("Prediction failed")
		page.Error = ml.UserMessage(err)
		s.render(w, statusFor(err), "form.html", page)
		return
	}

	view := &resultView{
		Target:        v.Schema.Target.Name,
		Formatted:     res.Formatted,
		Unit:          res.Unit,
		BaseValue:     v.Schema.Format(res.Explanation.BaseValue),
		Contributions: res.Explanation.Sorted(),
	}
	if res.Plot != nil {
		view.PlotURI = template.URL("data:" + res.Plot.ContentType + ";base64," +
			base64.StdEncoding.EncodeToString(res.Plot.Data))
	}
	page.Result = view
	s.render(w, http.StatusOK, "form.html", page)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	v, ok := s.variant(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown variant %q", variantName(r))})
		return
	}
	writeJSON(w, http.StatusOK, v.Schema)
}

func (s *Server) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	v, ok := s.variant(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{RequestID: requestID, Error: fmt.Sprintf("unknown variant %q", variantName(r))})
		return
	}
	if !v.Loaded() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			RequestID: requestID,
			Error:     ml.UserMessage(v.Err),
			Kind:      ml.KindConfiguration.String(),
		})
		return
	}

	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{RequestID: requestID, Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var vec []float64
	switch {
	case req.Features != nil && req.Vector != nil:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{RequestID: requestID, Error: "set either features or vector, not both"})
		return
	case req.Vector != nil:
		vec = req.Vector
	case req.Features != nil:
		values, err := stringValues(req.Features)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{RequestID: requestID, Error: err.Error()})
			return
		}
		vec, err = v.Schema.Vector(values)
		if err != nil {
			writeJSON(w, statusFor(err), ErrorResponse{RequestID: requestID, Error: err.Error()})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{RequestID: requestID, Error: "features or vector is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	res, err := v.Pipeline.Run(ctx, vec)
	if err != nil {
		kind, _ := ml.KindOf(err)
		log.Error().
			Err(err).
			Str("variant", v.Name).
			Str("request_id", requestID).
			Msg("Prediction failed")
		writeJSON(w, statusFor(err), ErrorResponse{
			RequestID: requestID,
			Error:     ml.UserMessage(err),
			Kind:      kind.String(),
		})
		return
	}

	resp := PredictResponse{
		RequestID:   requestID,
		Variant:     v.Name,
		Value:       res.Value,
		Formatted:   res.Formatted,
		Unit:        res.Unit,
		Explanation: res.Explanation,
		LatencyMS:   float64(res.Latency.Microseconds()) / 1000,
		Timestamp:   time.Now().UTC(),
	}
	if res.Plot != nil {
		resp.Plot = base64.StdEncoding.EncodeToString(res.Plot.Data)
		resp.PlotContentType = res.Plot.ContentType
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth is 200 while at least one variant can serve predictions.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := healthStatus{Status: "ok", Variants: make(map[string]variantHealth, len(s.order))}
	loaded := 0
	for _, name := range s.order {
		v := s.variants[name]
		vh := variantHealth{Loaded: v.Loaded(), Features: v.Schema.Len()}
		if v.Loaded() {
			a := v.Pipeline.Artifacts()
			vh.ModelSHA256 = a.ModelSHA256
			vh.ModelAgeSeconds = a.ModelAge().Seconds()
			loaded++
		} else {
			vh.Error = v.Err.Error()
		}
		health.Variants[name] = vh
	}

	status := http.StatusOK
	switch {
	case loaded == 0:
		health.Status = "unavailable"
		status = http.StatusServiceUnavailable
	case loaded < len(s.order):
		health.Status = "degraded"
	}
	writeJSON(w, status, health)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Template execution failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func newFormPage(v *Variant, values map[string]string) formPage {
	page := formPage{
		Title:    v.Schema.Title,
		Variant:  v.Name,
		Disabled: !v.Loaded(),
	}
	if page.Disabled {
		page.Error = ml.UserMessage(v.Err)
	}
	for i, f := range v.Schema.Features {
		fv := fieldView{
			ID:    "f" + strconv.Itoa(i),
			Name:  f.Name,
			Label: f.Label,
			Enum:  f.Kind == schema.KindEnum,
			Value: values[f.Name],
		}
		if fv.Enum {
			for _, o := range f.Options {
				fv.Options = append(fv.Options, o.Label)
			}
		} else {
			fv.Step = "any"
			if f.Step > 0 {
				fv.Step = strconv.FormatFloat(f.Step, 'f', -1, 64)
			}
			if f.Min != nil {
				fv.Min = strconv.FormatFloat(*f.Min, 'f', -1, 64)
			}
		}
		page.Fields = append(page.Fields, fv)
	}
	return page
}

// stringValues converts decoded JSON feature values to the form's string
// representation. Numbers keep their literal text.
func stringValues(in map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for name, raw := range in {
		switch v := raw.(type) {
		case json.Number:
			out[name] = v.String()
		case string:
			out[name] = v
		default:
			return nil, fmt.Errorf("%w: %s must be a number or an option label", schema.ErrInvalidValue, name)
		}
	}
	return out, nil
}
