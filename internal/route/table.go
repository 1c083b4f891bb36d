package route

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// SettingCenterPath is read by the sender-lookup policy as well as exposed.
const SettingCenterPath = "/api/setting-center"

// Table returns every route the gateway serves. It panics if two
// descriptors share a method and path.
func Table() []Descriptor {
	ds := []*Descriptor{
		// Auth
		New("auth.login", http.MethodPost, "/api/auth/login").Body("email", "password").Public(),
		New("auth.logout", http.MethodPost, "/api/auth/logout").Public().WithPolicy(PolicyLogout),
		New("auth.me", http.MethodGet, "/api/auth/me"),

		// Customers and loyalty points
		New("customers.list", http.MethodGet, "/api/customers"),
		New("customers.create", http.MethodPost, "/api/customers").Body("name", "phone"),
		New("customers.get", http.MethodGet, "/api/customers/:id").UUID("id"),
		New("customers.update", http.MethodPut, "/api/customers/:id").UUID("id"),
		New("customers.delete", http.MethodDelete, "/api/customers/:id").UUID("id"),
		New("customers.points.list", http.MethodGet, "/api/customers/:id/points").UUID("id"),
		New("customers.points.adjust", http.MethodPost, "/api/customers/:id/points").Body("points").UUID("id"),
		New("customers.fields.list", http.MethodGet, "/api/customers/:id/fields").UUID("id"),
		New("customers.fields.update", http.MethodPut, "/api/customers/:id/fields/:field_id").Body("value").UUID("id", "field_id"),
		New("customers.fields.delete", http.MethodDelete, "/api/customers/:id/fields/:field_id").UUID("id", "field_id"),
		New("point-transactions.list", http.MethodGet, "/api/point-transactions").Query("customer_id").UUID("customer_id"),

		// Promotions
		New("promotions.list", http.MethodGet, "/api/promotions"),
		New("promotions.create", http.MethodPost, "/api/promotions").Body("name"),
		New("promotions.get", http.MethodGet, "/api/promotions/:id").UUID("id"),
		New("promotions.update", http.MethodPut, "/api/promotions/:id").UUID("id"),
		New("promotions.delete", http.MethodDelete, "/api/promotions/:id").UUID("id"),

		// Products and inventory
		New("products.list", http.MethodGet, "/api/products"),
		New("products.create", http.MethodPost, "/api/products").Body("name", "sku"),
		New("products.get", http.MethodGet, "/api/products/:id").UUID("id"),
		New("products.update", http.MethodPut, "/api/products/:id").UUID("id"),
		New("products.delete", http.MethodDelete, "/api/products/:id").UUID("id"),
		New("inventory.list", http.MethodGet, "/api/inventory"),
		New("inventory.stock.update", http.MethodPut, "/api/inventory/:id/stock").Body("quantity").UUID("id"),

		// Settings center
		New("setting-center.get", http.MethodGet, SettingCenterPath).WithPolicy(PolicySettingsDefault),
		New("setting-center.create", http.MethodPost, SettingCenterPath),
		New("setting-center.update", http.MethodPut, SettingCenterPath),

		// SMS
		New("sms-templates.list", http.MethodGet, "/api/sms-templates"),
		New("sms-templates.create", http.MethodPost, "/api/sms-templates").Body("name", "content").WithPolicy(PolicySenderLookup),
		New("sms-templates.update", http.MethodPut, "/api/sms-templates/:id").UUID("id"),
		New("sms-templates.delete", http.MethodDelete, "/api/sms-templates/:id").UUID("id"),
		New("sms.send", http.MethodPost, "/api/sms/send").Body("phone", "message"),

		// Mail
		New("mails.list", http.MethodGet, "/api/mails"),
		New("mails.get", http.MethodGet, "/api/mails/:id").UUID("id"),
		New("mails.send", http.MethodPost, "/api/mails").Body("to", "subject"),
		New("mails.delete", http.MethodDelete, "/api/mails/:id").UUID("id"),

		// AI chat
		New("chat.conversations.list", http.MethodGet, "/api/chat/conversations"),
		New("chat.conversations.create", http.MethodPost, "/api/chat/conversations").Body("title"),
		New("chat.messages.list", http.MethodGet, "/api/chat/conversations/:id/messages").UUID("id"),
		New("chat.messages.send", http.MethodPost, "/api/chat/conversations/:id/messages").Body("content").UUID("id"),
	}

	seen := make(map[string]string, len(ds))
	out := make([]Descriptor, 0, len(ds))
	for _, d := range ds {
		key := d.Method + " " + d.Path
		if prev, ok := seen[key]; ok {
			panic(fmt.Sprintf("route %s duplicates %s (%s)", d.Name, prev, key))
		}
		seen[key] = d.Name
		out = append(out, *d)
	}
	return out
}

// Prefixes returns the distinct resource prefixes (/api/<resource>) of ds,
// sorted longest first so that more specific prefixes match before shorter ones.
func Prefixes(ds []Descriptor) []string {
	set := make(map[string]bool)
	for _, d := range ds {
		parts := strings.SplitN(strings.TrimPrefix(d.Path, "/"), "/", 3)
		if len(parts) < 2 {
			continue
		}
		set["/"+parts[0]+"/"+parts[1]] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
