package rpctransport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmRejectsMalformedSignatureBeforeDialingAnything(t *testing.T) {
	c := &Client{}
	_, ok, err := c.Confirm(context.Background(), "not-a-real-signature")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDialErrorsOnUnparsableURL(t *testing.T) {
	_, err := Dial("not a url at all")
	assert.Error(t, err)
}
