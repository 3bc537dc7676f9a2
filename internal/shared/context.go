package shared

import "context"

type companyContextKey struct{}

// ContextWithCompany stores the company scope of a request.
func ContextWithCompany(ctx context.Context, company string) context.Context {
	return context.WithValue(ctx, companyContextKey{}, company)
}

// CompanyFromContext returns the company scope, or "" when none was set.
func CompanyFromContext(ctx context.Context) string {
	company, _ := ctx.Value(companyContextKey{}).(string)
	return company
}
