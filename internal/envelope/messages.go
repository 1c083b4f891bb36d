package envelope

import (
	"fmt"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"dashboard-gateway/internal/model"
)

const keyTransportFailure = "transport_failure"

// supported lists the languages the catalog carries, English first as the fallback.
var supported = []language.Tag{language.English, language.Thai}

var translations = map[language.Tag]map[string]string{
	language.English: {
		keyTransportFailure: "An error occurred while connecting to the server",
	},
	language.Thai: {
		keyTransportFailure: "เกิดข้อผิดพลาดในการเชื่อมต่อกับเซิร์ฟเวอร์",
	},
}

// ParseLanguage resolves a configured language name to a supported tag.
func ParseLanguage(name string) (language.Tag, error) {
	tag, err := language.Parse(name)
	if err != nil {
		return language.Und, fmt.Errorf("parse language %q: %w", name, err)
	}
	_, idx, conf := language.NewMatcher(supported).Match(tag)
	if conf == language.No {
		return language.Und, fmt.Errorf("language %q is not supported", name)
	}
	return supported[idx], nil
}

// Messages renders the gateway's own fixed messages in one language.
type Messages struct {
	printer *message.Printer
}

// NewMessages builds the catalog and a printer for lang.
func NewMessages(lang string) (*Messages, error) {
	tag, err := ParseLanguage(lang)
	if err != nil {
		return nil, err
	}

	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for t, msgs := range translations {
		for key, text := range msgs {
			if err := b.SetString(t, key, text); err != nil {
				return nil, fmt.Errorf("catalog %s/%s: %w", t, key, err)
			}
		}
	}

	return &Messages{printer: message.NewPrinter(tag, message.Catalog(b))}, nil
}

// TransportFailure is the fixed text reported when the backend cannot be reached.
func (m *Messages) TransportFailure() string {
	return m.printer.Sprintf(keyTransportFailure)
}

// Fallback is the 500 reply for transport failures.
func (m *Messages) Fallback() model.Reply {
	return Message(http.StatusInternalServerError, m.TransportFailure())
}
