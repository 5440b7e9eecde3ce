package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsFreeText(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("work_order_number", "SPK-001"),
		attribute.String("report_note", "pipa bocor di lantai 2"),
		attribute.String("customer_name", "PT Maju"),
	)

	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("work_order_number"), attrs[0].Key)
}

func TestSafeErrorKeepsOnlyType(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.Equal(t, "*errors.errorString", SafeError(errors.New("secret detail")).Error())
}
