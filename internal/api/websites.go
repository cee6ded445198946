package api

import (
	"net/http"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/billing"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

type WebsiteDataRequest struct {
	WebsiteID    string `json:"websiteId" validate:"required"`
	LocationCode int    `json:"locationCode" validate:"gte=0"`
	LanguageCode string `json:"languageCode" validate:"max=8"`
	Limit        int    `json:"limit" validate:"gte=0,lte=1000"`
	Force        bool   `json:"force"`
}

func (req WebsiteDataRequest) location() seo.Location {
	loc := seo.DefaultLocation
	if req.LocationCode > 0 {
		loc.Code = req.LocationCode
	}
	if req.LanguageCode != "" {
		loc.Language = req.LanguageCode
	}
	return loc
}

// ownedSite decodes the request and loads the caller's website.
func ownedSite(w http.ResponseWriter, r *http.Request, deps Deps) (WebsiteDataRequest, seo.Website, bool) {
	var req WebsiteDataRequest
	if !decode(w, r, &req) {
		return req, seo.Website{}, false
	}
	if deps.Website == nil {
		httpError(w, http.StatusServiceUnavailable, errInternal, "website data is not configured")
		return req, seo.Website{}, false
	}
	site, err := deps.Store.OwnedWebsite(r.Context(), principal(r).UserID, req.WebsiteID)
	if err != nil {
		writeErr(w, err)
		return req, seo.Website{}, false
	}
	return req, site, true
}

func handleWebsiteOverview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, site, ok := ownedSite(w, r, deps)
		if !ok {
			return
		}
		snap, err := deps.Website.Overview(r.Context(), site, req.location())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleUpdateMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, site, ok := ownedSite(w, r, deps)
		if !ok {
			return
		}
		snap, err := deps.Website.UpdateMetrics(r.Context(), site, req.location())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleRankedKeywords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, site, ok := ownedSite(w, r, deps)
		if !ok {
			return
		}
		view, err := deps.Website.RankedKeywords(r.Context(), site, req.location(), req.Limit)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleKeywordRecommendations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := llm.RouteFromHeaders(r.Header, deps.DefaultRoute)
		req, site, ok := ownedSite(w, r, deps)
		if !ok {
			return
		}
		recs, err := deps.Website.AnalyzeKeywordRecommendations(r.Context(), route, site, req.location(), req.Force)
		if err != nil {
			writeErr(w, err)
			return
		}
		observe(deps, "keyword_recommendations", recs.Status)
		if !charge(w, r, deps, billing.CostRecommendations, "keyword_recommendations", site.Domain) {
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}
