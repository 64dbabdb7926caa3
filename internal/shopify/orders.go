package shopify

import (
	"context"
	"strings"
)

// MetafieldNamespace is where the verification mirror lives on each order.
const MetafieldNamespace = "ink"

// OrderState is an order's contact details plus its current ink metafields.
type OrderState struct {
	GID    string
	Name   string
	Email  string
	Phone  string
	Fields map[string]string
}

const orderByIDQuery = `
query OrderByID($id: ID!) {
  order(id: $id) { id }
}`

const ordersByNameQuery = `
query OrdersByName($q: String!) {
  orders(first: 1, query: $q) {
    edges { node { id name } }
  }
}`

const orderStateQuery = `
query OrderState($id: ID!, $ns: String!) {
  order(id: $id) {
    id
    name
    email
    phone
    customer { email phone }
    shippingAddress { phone }
    metafields(first: 25, namespace: $ns) {
      edges { node { key value } }
    }
  }
}`

type orderIDData struct {
	Order *struct {
		ID string `json:"id"`
	} `json:"order"`
}

type ordersByNameData struct {
	Orders struct {
		Edges []struct {
			Node struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"orders"`
}

type orderStateData struct {
	Order *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Customer *struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"customer"`
		ShippingAddress *struct {
			Phone string `json:"phone"`
		} `json:"shippingAddress"`
		Metafields struct {
			Edges []struct {
				Node struct {
					Key   string `json:"key"`
					Value string `json:"value"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"metafields"`
	} `json:"order"`
}

// OrderByID reports whether the order with this GID exists.
func (c *Client) OrderByID(ctx context.Context, gid string) (string, bool, error) {
	data, err := query[orderIDData](ctx, c, "order by id", orderByIDQuery, map[string]any{"id": gid})
	if err != nil {
		return "", false, err
	}
	if data.Order == nil || data.Order.ID == "" {
		return "", false, nil
	}
	return data.Order.ID, true, nil
}

// OrderByName runs an orders search (e.g. "name:#1001") and returns the first hit.
func (c *Client) OrderByName(ctx context.Context, search string) (string, bool, error) {
	data, err := query[ordersByNameData](ctx, c, "orders by name", ordersByNameQuery, map[string]any{"q": search})
	if err != nil {
		return "", false, err
	}
	if len(data.Orders.Edges) == 0 || data.Orders.Edges[0].Node.ID == "" {
		return "", false, nil
	}
	return data.Orders.Edges[0].Node.ID, true, nil
}

// ReadOrder loads contact details and the ink metafields of an order.
// A missing order yields (nil, nil).
func (c *Client) ReadOrder(ctx context.Context, gid string) (*OrderState, error) {
	data, err := query[orderStateData](ctx, c, "order state", orderStateQuery, map[string]any{
		"id": gid,
		"ns": MetafieldNamespace,
	})
	if err != nil {
		return nil, err
	}
	o := data.Order
	if o == nil {
		return nil, nil
	}

	st := &OrderState{
		GID:    o.ID,
		Name:   o.Name,
		Email:  strings.TrimSpace(o.Email),
		Phone:  strings.TrimSpace(o.Phone),
		Fields: make(map[string]string, len(o.Metafields.Edges)),
	}
	if o.Customer != nil {
		if st.Email == "" {
			st.Email = strings.TrimSpace(o.Customer.Email)
		}
		if st.Phone == "" {
			st.Phone = strings.TrimSpace(o.Customer.Phone)
		}
	}
	if st.Phone == "" && o.ShippingAddress != nil {
		st.Phone = strings.TrimSpace(o.ShippingAddress.Phone)
	}
	for _, e := range o.Metafields.Edges {
		st.Fields[e.Node.Key] = e.Node.Value
	}
	return st, nil
}

// LegacyID returns the numeric tail of a GID ("gid://shopify/Order/123" -> "123").
func LegacyID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}
