package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-auth/config"
)

var cfg = &config.Config{AppName: "Acme Auth", CompanyName: "Acme", SupportURL: "https://acme.test/help"}

func TestRender(t *testing.T) {
	expires := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		tpl     string
		data    map[string]any
		subject string
		inText  []string
		inHTML  []string
	}{
		{
			name:    "welcome",
			tpl:     Welcome,
			data:    NewWelcomeData(cfg, "alice", "alice@example.com"),
			subject: "Welcome to Acme Auth",
			inText:  []string{"Hi alice", "alice@example.com"},
			inHTML:  []string{"<strong>alice@example.com</strong>"},
		},
		{
			name:    "verify email",
			tpl:     VerifyEmail,
			data:    NewVerifyEmailData(cfg, "alice", "alice@example.com", "https://acme.test/verify?token=abc", WithExpiresAt(expires)),
			subject: "Verify your email address",
			inText:  []string{"https://acme.test/verify?token=abc", "02 March 2024, 12:00"},
			inHTML:  []string{`href="https://acme.test/verify?token=abc"`},
		},
		{
			name:    "password changed",
			tpl:     PasswordChanged,
			data:    NewPasswordChangedData(cfg, "", "bob@example.com", WithTime(expires)),
			subject: "Your password was changed",
			inText:  []string{"Hi there", "bob@example.com", "https://acme.test/help"},
			inHTML:  []string{"contact support"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, text, html, err := Render(tt.tpl, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.subject, subject)
			for _, s := range tt.inText {
				assert.Contains(t, text, s)
			}
			for _, s := range tt.inHTML {
				assert.Contains(t, html, s)
			}
		})
	}
}

func TestRender_EscapesHTML(t *testing.T) {
	data := NewWelcomeData(cfg, "<script>x</script>", "alice@example.com")
	_, _, html, err := Render(Welcome, data)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>x</script>")
}

func TestRender_Unknown(t *testing.T) {
	_, _, _, err := Render("login_otp", nil)
	assert.Error(t, err)
}
