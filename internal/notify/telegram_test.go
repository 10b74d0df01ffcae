package notify

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTelegramDisabledWithoutToken(t *testing.T) {
	os.Unsetenv("TELEGRAM_BOT_TOKEN")
	assert.Nil(t, NewTelegram())
}

func TestNilTelegramMethodsAreSafeNoops(t *testing.T) {
	var tg *Telegram
	assert.NotPanics(t, func() {
		tg.Notify("hello")
		tg.AlertGhost("pool1")
		tg.AlertBlacklisted("pool1", "reason")
		tg.AlertKillSwitch("daily loss limit")
	})
}

func TestNewPushDisabledWithoutCredentialsFile(t *testing.T) {
	assert.Nil(t, NewPush(os.TempDir()+"/definitely-missing-creds.json", "alerts"))
}

func TestNilPushSendIsSafeNoop(t *testing.T) {
	var p *Push
	assert.NotPanics(t, func() {
		p.Send(nil, "title", "body", nil)
	})
}
