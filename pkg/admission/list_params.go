package admission

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Rocket-Innovation/mca-timer/pkg/timer"
	"github.com/Rocket-Innovation/mca-timer/pkg/timerstore"
)

// parseListParams reads status/sort/order/limit/offset query parameters.
// Invalid enum values and non-integer limit/offset values are rejected;
// out-of-range numbers are clamped by timerstore.ClampListParams rather
// than rejected, matching spec.md §8's boundary-value handling for
// pagination.
func parseListParams(r *http.Request) (timerstore.ListParams, error) {
	q := r.URL.Query()
	var p timerstore.ListParams

	if status := q.Get("status"); status != "" {
		s := timer.Status(status)
		switch s {
		case timer.StatusPending, timer.StatusExecuting, timer.StatusCompleted, timer.StatusFailed, timer.StatusCanceled:
			p.StatusFilter = &s
		default:
			return p, fmt.Errorf("status must be one of pending, executing, completed, failed, canceled")
		}
	}

	if sort := q.Get("sort"); sort != "" {
		s := timerstore.SortField(sort)
		switch s {
		case timerstore.SortCreatedAt, timerstore.SortExecuteAt:
			p.Sort = s
		default:
			return p, fmt.Errorf("sort must be one of created_at, execute_at")
		}
	}

	if order := q.Get("order"); order != "" {
		o := timerstore.SortOrder(order)
		switch o {
		case timerstore.OrderAsc, timerstore.OrderDesc:
			p.Order = o
		default:
			return p, fmt.Errorf("order must be one of asc, desc")
		}
	}

	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return p, fmt.Errorf("limit must be an integer")
		}
		p.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			return p, fmt.Errorf("offset must be an integer")
		}
		p.Offset = n
	}

	return timerstore.ClampListParams(p), nil
}
