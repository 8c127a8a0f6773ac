package collyfetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/crawler"
)

// detailEntry is one value of the appdetails envelope keyed by app id.
type detailEntry struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type detailFields struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type listEnvelope struct {
	AppList struct {
		Apps []catalog.ListEntry `json:"apps"`
	} `json:"applist"`
}

// classifyReply maps transport-level results onto outcomes. It returns false
// when the reply is a 200 whose body still needs parsing.
func classifyReply(rep reply) (crawler.FetchResult, bool) {
	switch {
	case rep.status == http.StatusTooManyRequests:
		return crawler.RateLimited(), true
	case rep.err != nil && rep.status != 0:
		return crawler.TransientError(fmt.Sprintf("HTTP %d: %v", rep.status, rep.err)), true
	case rep.err != nil:
		return crawler.TransientError(rep.err.Error()), true
	case rep.status != http.StatusOK:
		return crawler.TransientError(fmt.Sprintf("HTTP %d", rep.status)), true
	}
	return crawler.FetchResult{}, false
}

// parseDetail decodes the appdetails envelope for id. A body that is not JSON
// is transient; a parsed body without a usable entry is a definitive negative.
func parseDetail(id int64, rep reply) crawler.FetchResult {
	if res, done := classifyReply(rep); done {
		return res
	}
	var envelope map[string]detailEntry
	if err := json.Unmarshal(rep.body, &envelope); err != nil {
		return crawler.TransientError(fmt.Sprintf("decode detail: %v", err))
	}
	entry, ok := envelope[strconv.FormatInt(id, 10)]
	if !ok {
		return crawler.NotFound("no entry for id")
	}
	if !entry.Success {
		return crawler.NotFound("success=false")
	}
	data := bytes.TrimSpace(entry.Data)
	if len(data) == 0 || data[0] != '{' {
		return crawler.NotFound("malformed payload: missing data object")
	}
	var fields detailFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return crawler.NotFound(fmt.Sprintf("malformed payload: %v", err))
	}
	if fields.Type == "" {
		return crawler.NotFound("malformed payload: missing type")
	}
	return crawler.Success(crawler.Detail{
		Name: fields.Name,
		Type: fields.Type,
		Raw:  json.RawMessage(append([]byte(nil), data...)),
	})
}

// parseList decodes the GetAppList envelope.
func parseList(rep reply) ([]catalog.ListEntry, crawler.FetchResult) {
	if res, done := classifyReply(rep); done {
		return nil, res
	}
	var envelope listEnvelope
	if err := json.Unmarshal(rep.body, &envelope); err != nil {
		return nil, crawler.TransientError(fmt.Sprintf("decode listing: %v", err))
	}
	return envelope.AppList.Apps, crawler.Success(crawler.Detail{})
}
