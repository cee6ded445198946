package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/article"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/billing"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/deepdive"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/writer"
)

const maxArticleBodySize = 25 << 20 // 25MB, references may carry PDFs

type DeepDiveRequest struct {
	Keyword          string `json:"keyword" validate:"required,max=200"`
	TargetLanguage   string `json:"targetLanguage" validate:"required,max=16"`
	WebsiteDomain    string `json:"websiteDomain" validate:"max=253"`
	CompetitorLimit  int    `json:"competitorLimit" validate:"gte=0,lte=5"`
	WorkflowConfigID string `json:"workflowConfigId"`
}

type DeepDiveResponse struct {
	Report       seo.SEOStrategyReport `json:"report"`
	Competitors  []seo.Competitor      `json:"competitors"`
	SERP         *seo.SERPResult       `json:"serp,omitempty"`
	Metrics      *seo.SERankingData    `json:"metrics,omitempty"`
	Status       outcome.Status        `json:"status"`
	Reason       string                `json:"reason,omitempty"`
	Degradations []string              `json:"degradations,omitempty"`
}

func handleDeepDive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := llm.RouteFromHeaders(r.Header, deps.DefaultRoute)

		var req DeepDiveRequest
		if !decode(w, r, &req) {
			return
		}
		if deps.Strategist == nil {
			httpError(w, http.StatusServiceUnavailable, errInternal, "deep dive is not configured")
			return
		}
		wf, err := workflow(r, deps, req.WorkflowConfigID)
		if err != nil {
			writeErr(w, err)
			return
		}
		res := deps.Strategist.Run(r.Context(), route, deepdive.Request{
			Keyword:         req.Keyword,
			TargetLanguage:  req.TargetLanguage,
			WebsiteDomain:   req.WebsiteDomain,
			CompetitorLimit: req.CompetitorLimit,
			PromptOverride:  wf.Override(seo.NodeDeepDive),
		})
		observe(deps, "deep_dive", res.Status)
		if res.IsFailed() {
			httpError(w, http.StatusBadGateway, errUpstream, "deep dive failed: %s", res.Reason)
			return
		}
		if !charge(w, r, deps, billing.CostDeepDive, "deep_dive", req.Keyword) {
			return
		}
		writeJSON(w, http.StatusOK, DeepDiveResponse{
			Report:       res.Data.Report,
			Competitors:  res.Data.Competitors,
			SERP:         res.Data.SERP,
			Metrics:      res.Data.Metrics,
			Status:       res.Status,
			Reason:       res.Reason,
			Degradations: res.Data.Degradations,
		})
	}
}

// ReferenceDocument is a user-supplied source for the writer. Content is
// plain text, or base64 when Encoding is "base64" (PDF uploads).
type ReferenceDocument struct {
	Name     string `json:"name" validate:"max=255"`
	Content  string `json:"content" validate:"required"`
	Encoding string `json:"encoding" validate:"omitempty,oneof=text base64"`
}

type VisualArticleRequest struct {
	Keyword          string              `json:"keyword" validate:"required,max=200"`
	TargetLanguage   string              `json:"targetLanguage" validate:"required,max=16"`
	WebsiteDomain    string              `json:"websiteDomain" validate:"max=253"`
	CompetitorLimit  int                 `json:"competitorLimit" validate:"gte=0,lte=5"`
	Tone             string              `json:"tone" validate:"max=200"`
	ImageStyle       string              `json:"imageStyle" validate:"max=200"`
	ImageCount       int                 `json:"imageCount" validate:"gte=0,lte=8"`
	References       []ReferenceDocument `json:"references" validate:"max=10,dive"`
	WorkflowConfigID string              `json:"workflowConfigId"`
}

func loadReferences(docs []ReferenceDocument) ([]writer.Reference, error) {
	refs := make([]writer.Reference, 0, len(docs))
	for i, d := range docs {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("reference-%d", i+1)
		}
		data := []byte(d.Content)
		if d.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(d.Content)
			if err != nil {
				return nil, fmt.Errorf("reference %q: invalid base64: %w", name, err)
			}
			data = decoded
		}
		ref, err := writer.LoadReference(name, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("reference %q: %w", name, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// handleVisualArticle streams pipeline events as server-sent events, one
// "data: {json}" frame per event.
func handleVisualArticle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := llm.RouteFromHeaders(r.Header, deps.DefaultRoute)

		var req VisualArticleRequest
		if !decodeLimit(w, r, &req, maxArticleBodySize) {
			return
		}
		if deps.Articles == nil {
			httpError(w, http.StatusServiceUnavailable, errInternal, "visual article pipeline is not configured")
			return
		}
		refs, err := loadReferences(req.References)
		if err != nil {
			httpError(w, http.StatusBadRequest, errInvalidRequest, "%v", err)
			return
		}
		wf, err := workflow(r, deps, req.WorkflowConfigID)
		if err != nil {
			writeErr(w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, errInternal, "streaming not supported")
			return
		}
		// The stream commits a 200 before the pipeline runs, so it is paid up front.
		if !charge(w, r, deps, billing.CostVisualArticle, "visual_article", req.Keyword) {
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		emit := func(ev article.Event) error {
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			flusher.Flush()
			switch ev.Type {
			case article.TypeDone:
				observe(deps, "visual_article", outcome.StatusOK)
			case article.TypeError:
				observe(deps, "visual_article", outcome.StatusFailed)
			}
			return r.Context().Err()
		}

		err = deps.Articles.Run(r.Context(), route, article.Request{
			Keyword:         req.Keyword,
			TargetLanguage:  req.TargetLanguage,
			WebsiteDomain:   req.WebsiteDomain,
			CompetitorLimit: req.CompetitorLimit,
			Tone:            req.Tone,
			ImageStyle:      req.ImageStyle,
			ImageCount:      req.ImageCount,
			References:      refs,
			Workflow:        wf,
		}, emit)
		if err != nil {
			slog.Info("visual article stream ended early", "keyword", req.Keyword, "error", err)
		}
	}
}

func writeEvent(w http.ResponseWriter, ev article.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		payload, _ = json.Marshal(article.Event{Type: article.TypeError, Error: "encoding event failed"})
	}
	var b strings.Builder
	b.WriteString("data: ")
	b.Write(payload)
	b.WriteString("\n\n")
	_, err = w.Write([]byte(b.String()))
	return err
}
