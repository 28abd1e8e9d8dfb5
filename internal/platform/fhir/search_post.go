package fhir

import (
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// searchValues returns the search parameters of a request. A POST
// _search with a form body contributes its form fields; URL query params
// take precedence over form fields of the same name.
func searchValues(c echo.Context) (url.Values, error) {
	query := c.QueryParams()
	req := c.Request()
	if req.Method != "POST" || !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm) {
		return query, nil
	}
	if err := req.ParseForm(); err != nil {
		return nil, err
	}
	return MergeSearchParams(query, req.PostForm), nil
}

// MergeSearchParams merges POST form body params with URL query params.
// URL query params take precedence.
func MergeSearchParams(query, formBody url.Values) url.Values {
	result := make(url.Values, len(query)+len(formBody))
	for k, v := range query {
		result[k] = v
	}
	for k, v := range formBody {
		if _, exists := result[k]; !exists {
			result[k] = v
		}
	}
	return result
}
