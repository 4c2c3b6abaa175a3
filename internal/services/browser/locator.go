package browser

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/nextwatch/internal/models"
)

// refAttribute tags the element a Locator resolved to, so chromedp actions can
// address it with a plain CSS query even when the Locator filters by text.
const refAttribute = "data-nw-ref"

// probeScript resolves a locator, tags the match and reports its state.
// Arguments are JSON literals: selector, text filter, ref value.
const probeScript = `(() => {
	const selector = %s, text = %s, ref = %s;
	let nodes;
	try {
		nodes = Array.from(document.querySelectorAll(selector));
	} catch (e) {
		return { found: false };
	}
	const needle = text.toLowerCase();
	const el = needle
		? nodes.find(n => (n.innerText || n.textContent || '').toLowerCase().includes(needle))
		: nodes[0];
	if (!el) {
		return { found: false };
	}
	el.setAttribute('` + refAttribute + `', ref);
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	return {
		found: true,
		visible: style.visibility !== 'hidden' && style.display !== 'none' && rect.width > 0 && rect.height > 0,
		enabled: !el.disabled,
		text: (el.innerText || el.textContent || '').trim()
	};
})()`

// fillScript sets an input value through the native setter and fires the
// events framework bindings listen for. Arguments: ref selector, value.
const fillScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) {
		return false;
	}
	const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
	const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
	el.focus();
	setter.call(el, %s);
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`

// elementProbe is the decoded result of probeScript
type elementProbe struct {
	Found   bool   `json:"found"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
}

// satisfies reports whether the probe meets the wanted state
func (p elementProbe) satisfies(state models.ElementState) bool {
	switch state {
	case models.StateAttached:
		return p.Found
	case models.StateHidden:
		return !p.Found || !p.Visible
	default:
		return p.Found && p.Visible
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func buildProbeScript(loc models.Locator, ref string) string {
	return fmt.Sprintf(probeScript, jsString(loc.CSS), jsString(loc.Text), jsString(ref))
}

func buildFillScript(refSelector, value string) string {
	return fmt.Sprintf(fillScript, jsString(refSelector), jsString(value))
}

// refSelector is the CSS query addressing a tagged element
func refSelector(ref string) string {
	return fmt.Sprintf(`[%s="%s"]`, refAttribute, ref)
}
