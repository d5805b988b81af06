package delta

import "sync"

// EmbedHandler merges updates to an embed of one type. A retain that carries
// an Embed such as {"table": <update>} is resolved through the handler
// registered for "table"; a and b are the data under that key.
type EmbedHandler interface {
	// Compose returns the update equivalent to applying a then b. keepNull
	// is set when the result is itself an update rather than embed content.
	Compose(a, b any, keepNull bool) any
	// Invert returns the update that undoes a, given the embed data base it
	// was applied to.
	Invert(a, base any) any
	// Transform rebases b against a concurrent a.
	Transform(a, b any, priority bool) any
}

var (
	handlersMu sync.RWMutex
	handlers   = make(map[string]EmbedHandler)
)

// RegisterEmbed installs the handler for embeds of the given type, replacing
// any previous one.
func RegisterEmbed(embedType string, h EmbedHandler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[embedType] = h
}

// UnregisterEmbed removes the handler for the given type.
func UnregisterEmbed(embedType string) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	delete(handlers, embedType)
}

func embedHandler(embedType string) EmbedHandler {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return handlers[embedType]
}

// matchEmbeds returns the shared type of a and b and the handler for it. ok
// is false when the embeds differ in type or no handler is registered, in
// which case the later embed replaces the earlier one wholesale.
func matchEmbeds(a, b Embed) (embedType string, aData, bData any, h EmbedHandler, ok bool) {
	aType, aData, okA := a.Type()
	bType, bData, okB := b.Type()
	if !okA || !okB || aType != bType {
		return "", nil, nil, nil, false
	}
	h = embedHandler(aType)
	if h == nil {
		return "", nil, nil, nil, false
	}
	return aType, aData, bData, h, true
}

func composeEmbeds(a, b Embed, keepNull bool) Embed {
	embedType, aData, bData, h, ok := matchEmbeds(a, b)
	if !ok {
		return b
	}
	return Embed{embedType: h.Compose(aData, bData, keepNull)}
}

// transformEmbeds rebases the embed update b against a concurrent update a.
// Without a handler both updates are replacements: with priority a's
// replacement stands and nil is returned, so b only keeps its attributes.
func transformEmbeds(a, b Embed, priority bool) Embed {
	embedType, aData, bData, h, ok := matchEmbeds(a, b)
	if !ok {
		if priority {
			return nil
		}
		return b
	}
	return Embed{embedType: h.Transform(aData, bData, priority)}
}

func invertEmbeds(change, base Embed) Embed {
	embedType, cData, bData, h, ok := matchEmbeds(change, base)
	if !ok {
		return base
	}
	return Embed{embedType: h.Invert(cData, bData)}
}
