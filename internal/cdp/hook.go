package cdp

import (
	"strconv"
	"strings"
)

// ReplyEvent 页面侧接收回复的事件名
const ReplyEvent = "prproxy:reply"

// hookTemplate 注入页面的 EME 钩子：
// message 事件中的 challenge 经中继调解后替换，update 的许可证先交给中继再放行。
// 回复超时未到达时放行原始数据。
const hookTemplate = `(() => {
  const binding = __BINDING__, replyEvent = __REPLY__, timeoutMS = __TIMEOUT__;
  if (window.__prproxyHooked || typeof window[binding] !== "function") return;
  window.__prproxyHooked = true;
  const relay = window[binding];
  const pending = new Map();
  let seq = 0;

  document.addEventListener(replyEvent, (e) => {
    const d = e.detail || {};
    const done = pending.get(d.requestId);
    if (done) { pending.delete(d.requestId); done(d.body); }
  });

  const send = (type, body) => new Promise((resolve) => {
    const requestId = String(++seq);
    const timer = setTimeout(() => { pending.delete(requestId); resolve(body); }, timeoutMS);
    pending.set(requestId, (reply) => { clearTimeout(timer); resolve(reply); });
    try {
      relay(JSON.stringify({ type, body, requestId, pageUrl: location.href.split("#")[0] }));
    } catch (_) {
      clearTimeout(timer);
      pending.delete(requestId);
      resolve(body);
    }
  });

  const toB64 = (buf) => {
    const u = buf instanceof ArrayBuffer ? new Uint8Array(buf) : new Uint8Array(buf.buffer, buf.byteOffset, buf.byteLength);
    let s = "";
    for (let i = 0; i < u.length; i++) s += String.fromCharCode(u[i]);
    return btoa(s);
  };
  const fromB64 = (s) => {
    const bin = atob(s);
    const u = new Uint8Array(bin.length);
    for (let i = 0; i < bin.length; i++) u[i] = bin.charCodeAt(i);
    return u.buffer;
  };

  if (!window.MediaKeySession) return;
  const proto = MediaKeySession.prototype;

  const wrapped = new WeakMap();
  const wrap = (listener) => {
    let fn = wrapped.get(listener);
    if (fn) return fn;
    fn = async function (ev) {
      if (ev && ev.message) {
        try {
          const original = toB64(ev.message);
          const body = await send("REQUEST", original);
          if (typeof body === "string" && body && body !== original) Object.defineProperty(ev, "message", { value: fromB64(body) });
        } catch (_) {}
      }
      return typeof listener === "function" ? listener.call(this, ev) : listener.handleEvent(ev);
    };
    wrapped.set(listener, fn);
    return fn;
  };
  const isListener = (l) => typeof l === "function" || (typeof l === "object" && l !== null);

  const addEventListener = proto.addEventListener;
  proto.addEventListener = function (type, listener, options) {
    if (type === "message" && isListener(listener)) listener = wrap(listener);
    return addEventListener.call(this, type, listener, options);
  };
  const removeEventListener = proto.removeEventListener;
  proto.removeEventListener = function (type, listener, options) {
    if (type === "message" && isListener(listener) && wrapped.has(listener)) listener = wrapped.get(listener);
    return removeEventListener.call(this, type, listener, options);
  };
  const onmessage = Object.getOwnPropertyDescriptor(proto, "onmessage");
  if (onmessage && onmessage.set) {
    Object.defineProperty(proto, "onmessage", {
      configurable: true,
      get() { return onmessage.get.call(this); },
      set(fn) { onmessage.set.call(this, typeof fn === "function" ? wrap(fn) : fn); },
    });
  }

  const update = proto.update;
  proto.update = async function (response) {
    try { await send("RESPONSE", toB64(response)); } catch (_) {}
    return update.call(this, response);
  };

  window.addEventListener("prproxy:manifest", (e) => {
    if (e.detail && e.detail.url) send("MANIFEST", JSON.stringify(e.detail));
  });
})();`

// HookScript 生成绑定到指定名称的钩子脚本，timeoutMS 为页面侧等待回复的上限
func HookScript(bindingName string, timeoutMS int) string {
	if timeoutMS <= 0 {
		timeoutMS = defaultReplyTimeoutMS
	}
	return strings.NewReplacer(
		"__BINDING__", strconv.Quote(bindingName),
		"__REPLY__", strconv.Quote(ReplyEvent),
		"__TIMEOUT__", strconv.Itoa(timeoutMS),
	).Replace(hookTemplate)
}
