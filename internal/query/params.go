package query

import (
	"net/url"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"sessionlog/internal/models"
)

// DefaultLimit is reported for list requests without an explicit limit.
const DefaultLimit = 50

// ListParams carries the raw list parameters a client may send.
type ListParams struct {
	StartDate string
	EndDate   string
	StartName string
	EndName   string
	Location  string
	Cash      string
	// Limit is parsed for compatibility and never applied to results.
	Limit int
}

// ParseListParams reads list parameters from a query string.
func ParseListParams(values url.Values) ListParams {
	params := ListParams{
		StartDate: values.Get("startDate"),
		EndDate:   values.Get("endDate"),
		StartName: values.Get("startName"),
		EndName:   values.Get("endName"),
		Location:  values.Get("location"),
		Cash:      values.Get("cash"),
		Limit:     DefaultLimit,
	}
	if raw := values.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			params.Limit = n
		}
	}
	return params
}

// UserFilter builds the filter for the user list endpoint.
func UserFilter(values url.Values) Filter {
	params := ParseListParams(values)
	filter := Filter{}
	filter = dateRange(filter, models.FieldCreatedDate, params.StartDate, params.EndDate)
	filter = nameRange(filter, models.FieldName, params.StartName, params.EndName)
	return filter
}

// SessionFilter builds the filter for the session list endpoint. The owning
// user constraint always comes first.
func SessionFilter(userID primitive.ObjectID, values url.Values) Filter {
	params := ParseListParams(values)
	filter := Filter{}.Eq(models.FieldUserID, userID)
	filter = dateRange(filter, models.FieldDate, params.StartDate, params.EndDate)
	filter = nameRange(filter, models.FieldSessionName, params.StartName, params.EndName)
	if params.Location != "" {
		filter = filter.In(models.FieldLocation, strings.Split(params.Location, ","))
	}
	if params.Cash != "" {
		filter = filter.Eq(models.FieldCash, params.Cash == "true")
	}
	return filter
}

func dateRange(filter Filter, field, start, end string) Filter {
	if t, ok := ParseDate(start); ok {
		filter = filter.Gte(field, t)
	}
	if t, ok := ParseDate(end); ok {
		filter = filter.Lte(field, t)
	}
	return filter
}

func nameRange(filter Filter, field, start, end string) Filter {
	if start != "" {
		filter = filter.Gte(field, start)
	}
	if end != "" {
		filter = filter.Lte(field, end)
	}
	return filter
}
