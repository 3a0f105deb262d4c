package demarches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dssync/internal/httpjson"
)

// ErrSchemaUnavailable is returned when the endpoint answers without a usable
// descriptor tree. Callers fall back to sampling real dossiers.
var ErrSchemaUnavailable = errors.New("demarches: schema unavailable")

// Client talks to one démarche endpoint with one credential. It is an
// explicit per-run context: credentials are never process-global, switching
// démarche means constructing a new Client.
type Client struct {
	http     *httpjson.Client
	endpoint string
}

// NewClient builds a Client for endpoint using the bearer token. The token is
// baked into the underlying HTTP client's base headers.
func NewClient(endpoint, token string, cfg httpjson.Config) *Client {
	if cfg.BaseHeaders == nil {
		cfg.BaseHeaders = http.Header{}
	}
	cfg.BaseHeaders.Set("Authorization", "Bearer "+token)
	return &Client{
		http:     httpjson.NewClient(cfg),
		endpoint: endpoint,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// IsPermissionError reports whether a GraphQL error message describes a
// permission-scoped failure. Those are never fatal: fields hidden from the
// token's scope are skipped, not treated as run failures.
func IsPermissionError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "permission") ||
		strings.Contains(m, "access") ||
		strings.Contains(m, "unauthorized") ||
		strings.Contains(m, "hidden due to")
}

// query posts a GraphQL document, filters permission-scoped errors, and fails
// on any remaining error. data may be empty when the whole response was
// permission-scoped away.
func (c *Client) query(ctx context.Context, doc string, vars map[string]any) (json.RawMessage, int, error) {
	var resp graphqlResponse
	if err := c.http.PostJSON(ctx, c.endpoint, graphqlRequest{Query: doc, Variables: vars}, &resp); err != nil {
		return nil, 0, err
	}

	permission := 0
	var hard []string
	for _, e := range resp.Errors {
		if IsPermissionError(e.Message) {
			permission++
			continue
		}
		hard = append(hard, e.Message)
	}
	if len(hard) > 0 {
		return nil, permission, fmt.Errorf("demarches: graphql errors: %s", strings.Join(hard, "; "))
	}
	return resp.Data, permission, nil
}

// FetchDossier retrieves one dossier with full champ detail. A nil dossier
// with nil error signals permission-scoped inaccessibility, not absence.
func (c *Client) FetchDossier(ctx context.Context, number int) (*Dossier, error) {
	data, _, err := c.query(ctx, queryGetDossier, map[string]any{"dossierNumber": number})
	if err != nil {
		return nil, err
	}

	var out struct {
		Dossier *Dossier `json:"dossier"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("demarches: decode dossier %d: %w", number, err)
		}
	}
	if out.Dossier == nil || out.Dossier.Number == 0 {
		return nil, nil
	}
	return out.Dossier, nil
}

// FetchDossiers retrieves the dossier list of a démarche, paginating
// internally. depositedSince, when non-empty (ISO 8601), is pushed down
// server-side; it is the only filter the API honors in the list query.
func (c *Client) FetchDossiers(ctx context.Context, demarcheNumber int, depositedSince string) ([]DossierSummary, error) {
	var all []DossierSummary
	var cursor *string

	for {
		vars := map[string]any{"demarcheNumber": demarcheNumber}
		if cursor != nil {
			vars["after"] = *cursor
		}
		if depositedSince != "" {
			vars["createdSince"] = depositedSince
		}

		data, _, err := c.query(ctx, queryGetDossiers, vars)
		if err != nil {
			return nil, err
		}

		var out struct {
			Demarche struct {
				Dossiers struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []DossierSummary `json:"nodes"`
				} `json:"dossiers"`
			} `json:"demarche"`
		}
		if len(data) == 0 {
			return all, nil
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("demarches: decode dossier list: %w", err)
		}

		all = append(all, out.Demarche.Dossiers.Nodes...)
		if !out.Demarche.Dossiers.PageInfo.HasNextPage {
			return all, nil
		}
		end := out.Demarche.Dossiers.PageInfo.EndCursor
		cursor = &end
	}
}

// FetchSchema retrieves the démarche's descriptor tree from its active
// revision. Permission-scoped errors are filtered; any other GraphQL error is
// fatal for discovery. A response without an active revision is reported as
// ErrSchemaUnavailable so callers can fall back to sampling.
func (c *Client) FetchSchema(ctx context.Context, demarcheNumber int) (*Schema, error) {
	data, _, err := c.query(ctx, queryGetSchema, map[string]any{"demarcheNumber": demarcheNumber})
	if err != nil {
		return nil, err
	}

	var out struct {
		Demarche *struct {
			ID             string `json:"id"`
			Number         int    `json:"number"`
			Title          string `json:"title"`
			ActiveRevision *struct {
				ChampDescriptors      []Descriptor `json:"champDescriptors"`
				AnnotationDescriptors []Descriptor `json:"annotationDescriptors"`
			} `json:"activeRevision"`
		} `json:"demarche"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("demarches: decode schema: %w", err)
		}
	}
	if out.Demarche == nil || out.Demarche.ActiveRevision == nil {
		return nil, fmt.Errorf("%w: démarche %d has no active revision", ErrSchemaUnavailable, demarcheNumber)
	}

	return &Schema{
		Number:                out.Demarche.Number,
		Title:                 out.Demarche.Title,
		ChampDescriptors:      out.Demarche.ActiveRevision.ChampDescriptors,
		AnnotationDescriptors: out.Demarche.ActiveRevision.AnnotationDescriptors,
	}, nil
}

// FetchDossierLabels retrieves the instance labels of one dossier. Returns
// nil (no error) when the dossier is out of the token's scope.
func (c *Client) FetchDossierLabels(ctx context.Context, number int) ([]Label, error) {
	data, _, err := c.query(ctx, queryGetDossierLabels, map[string]any{"dossierNumber": number})
	if err != nil {
		return nil, err
	}

	var out struct {
		Dossier *struct {
			Labels []Label `json:"labels"`
		} `json:"dossier"`
	}
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("demarches: decode labels: %w", err)
	}
	if out.Dossier == nil {
		return nil, nil
	}
	return out.Dossier.Labels, nil
}
