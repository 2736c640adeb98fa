package xslog

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/garrettladley/noticeboard/internal/version"
	"github.com/garrettladley/noticeboard/internal/xhttp"
)

const (
	keyError = "error"
)

func Error(err error) slog.Attr {
	return slog.String(keyError, err.Error())
}

func RequestID(requestID string) slog.Attr {
	const requestIDKey = "request_id"
	return slog.String(requestIDKey, requestID)
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func Backoff(backoff time.Duration) slog.Attr {
	const backoffKey = "backoff"
	return slog.Duration(backoffKey, backoff)
}

func RequestMethod(r *http.Request) slog.Attr {
	const methodKey = "method"
	return slog.String(methodKey, r.Method)
}

func RequestPath(r *http.Request) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, r.URL.Path)
}

func IP(ip string) slog.Attr {
	const ipKey = "ip"
	return slog.String(ipKey, ip)
}

func RequestIP(r *http.Request) slog.Attr {
	return IP(xhttp.ClientIP(r))
}

func Version() slog.Attr {
	const versionKey = "version"
	return slog.String(versionKey, version.Get())
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func Limit(limit int) slog.Attr {
	const limitKey = "limit"
	return slog.Int(limitKey, limit)
}

func OwnerID(id string) slog.Attr {
	const ownerIDKey = "owner_id"
	return slog.String(ownerIDKey, id)
}

func NotificationID(id string) slog.Attr {
	const notificationIDKey = "notification_id"
	return slog.String(notificationIDKey, id)
}

func Kind(kind string) slog.Attr {
	const kindKey = "kind"
	return slog.String(kindKey, kind)
}

func Resource(resource string) slog.Attr {
	const resourceKey = "resource"
	return slog.String(resourceKey, resource)
}

func Filter(filter string) slog.Attr {
	const filterKey = "filter"
	return slog.String(filterKey, filter)
}

func Topic(topic string) slog.Attr {
	const topicKey = "topic"
	return slog.String(topicKey, topic)
}

func ChannelKey(key string) slog.Attr {
	const channelKey = "channel"
	return slog.String(channelKey, key)
}

func Status(status string) slog.Attr {
	const statusKey = "channel_status"
	return slog.String(statusKey, status)
}

func EventType(eventType string) slog.Attr {
	const eventTypeKey = "event_type"
	return slog.String(eventTypeKey, eventType)
}

func Type(t string) slog.Attr {
	const typeKey = "type"
	return slog.String(typeKey, t)
}

func Data(data string) slog.Attr {
	const dataKey = "data"
	return slog.String(dataKey, data)
}

func Driver(driver string) slog.Attr {
	const driverKey = "driver"
	return slog.String(driverKey, driver)
}

func Migration(name string) slog.Attr {
	const migrationKey = "migration"
	return slog.String(migrationKey, name)
}

func Title(title string) slog.Attr {
	const titleKey = "title"
	return slog.String(titleKey, title)
}

func Body(body string) slog.Attr {
	const bodyKey = "body"
	return slog.String(bodyKey, body)
}
