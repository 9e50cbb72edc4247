package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard field constructors so the key names stay consistent across layers.

func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

func Method(v string) zap.Field {
	return zap.String("method", v)
}

func Path(v string) zap.Field {
	return zap.String("path", v)
}

func Status(v int) zap.Field {
	return zap.Int("status", v)
}

func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

func TenantID(v string) zap.Field {
	return zap.String("tenant_id", v)
}

func Provider(v string) zap.Field {
	return zap.String("provider", v)
}

func Issuer(v string) zap.Field {
	return zap.String("issuer", v)
}

func InvitationID(v string) zap.Field {
	return zap.String("invitation_id", v)
}

func Email(v string) zap.Field {
	return zap.String("email", v)
}

// Component tags the emitting component/module.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Layer tags the layer (handler, service, repository).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

func Err(err error) zap.Field {
	return zap.Error(err)
}

func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Generic passthroughs so call sites don't need to import zap directly.

func String(key, v string) zap.Field {
	return zap.String(key, v)
}

func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}
