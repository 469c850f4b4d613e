package types

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalItems int  `json:"total_items"`
	HasMore    bool `json:"has_more"`
}

// PageParams defines page-based pagination input. Zero values are replaced
// with defaults by Normalize.
type PageParams struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Normalize clamps the parameters to sane bounds.
func (p PageParams) Normalize() PageParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Offset returns the SQL offset for the normalized parameters.
func (p PageParams) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}
