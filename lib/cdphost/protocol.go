package cdphost

import (
	"encoding/json"
	"fmt"
)

type cdpMessage struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *cdpError       `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("CDP error %d: %s", e.Code, e.Message)
}

type targetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Attached bool   `json:"attached"`
}

type evaluateResult struct {
	Result struct {
		Type        string          `json:"type"`
		Subtype     string          `json:"subtype"`
		Value       json.RawMessage `json:"value"`
		Description string          `json:"description"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception struct {
			Description string `json:"description"`
		} `json:"exception"`
	} `json:"exceptionDetails"`
}

// Names installed on the page. The binding is the CDP callback into Go; the
// listener is the single function reference added to and removed from the
// window, so repeated adds are ignored by the page.
const (
	bindingName  = "__pagebridgeScroll__"
	listenerName = "__pagebridgeOnScroll__"
)

// listenerScript defines the page-side listener. It is evaluated now and on
// every new document.
const listenerScript = `(function() {
  if (typeof window.` + listenerName + ` === 'function') return;
  window.` + listenerName + ` = function() {
    if (typeof window.` + bindingName + ` === 'function') {
      window.` + bindingName + `('');
    }
  };
})();`

const attachScript = listenerScript + `
window.addEventListener('scroll', window.` + listenerName + `, { passive: true });
window.addEventListener('resize', window.` + listenerName + `, { passive: true });
true;`

const detachScript = `(function() {
  const fn = window.` + listenerName + `;
  if (typeof fn !== 'function') return true;
  window.removeEventListener('scroll', fn, { passive: true });
  window.removeEventListener('resize', fn, { passive: true });
  return true;
})()`

const scrollStateScript = `({
  offset: window.pageYOffset,
  viewportHeight: window.innerHeight,
  documentHeight: document.body ? document.body.clientHeight : 0
})`

const backgroundColorReadScript = `document.body ? document.body.style.backgroundColor : ""`

func backgroundColorScript(color string) string {
	// JSON string literals are valid JavaScript string literals.
	quoted, _ := json.Marshal(color)
	return fmt.Sprintf("document.body.style.backgroundColor = %s; true;", quoted)
}
