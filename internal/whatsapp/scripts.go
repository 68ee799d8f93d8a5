package whatsapp

// Page scripts. Every script resolves to a non-null JSON value.

const appSelector = "#app"

const qrSelector = `div[data-ref] canvas, canvas[aria-label*="Scan"], div[data-testid="qrcode"]`

const loginStateScript = `(() => {
	if (document.querySelector('div[data-testid="qrcode"], canvas[aria-label*="Scan"], div[data-ref] canvas')) {
		return 'qr';
	}
	if (document.querySelector('div[data-testid="default-user"], div[data-testid="chat"], div[data-testid="chat-list"], #pane-side')) {
		return 'chats';
	}
	return 'unknown';
})()`

const chatOpenScript = `(() => {
	const selectors = [
		'div[data-testid="conversation-panel-wrapper"]',
		'div[data-testid="conversation-panel"]',
		'div[data-testid="message-list"]',
		'div[role="application"]',
	];
	if (selectors.some(s => document.querySelector(s) !== null)) {
		return true;
	}
	return document.querySelectorAll('div[data-testid="msg-container"]').length > 0;
})()`

const snapshotScript = `(() => Array.from(document.querySelectorAll('div[data-id]')).map(el => {
	const img = el.querySelector('img[src^="blob:"]');
	const textEl = el.querySelector('span.selectable-text') || el.querySelector('div.selectable-text');
	const preEl = el.matches('[data-pre-plain-text]') ? el : el.querySelector('[data-pre-plain-text]');
	const text = (textEl && textEl.textContent) || (img ? '' : el.textContent) || '';
	return {
		id: el.getAttribute('data-id') || '',
		prePlainText: preEl ? (preEl.getAttribute('data-pre-plain-text') || '') : '',
		text: text.trim(),
		imageUrl: img ? img.src : '',
	};
}).filter(n => n.id !== ''))()`

// imageScript is formatted with the JSON-quoted message id.
const imageScript = `(async (id) => {
	const el = document.querySelector('[data-id="' + CSS.escape(id) + '"]');
	if (!el) {
		return '';
	}
	const selectors = [
		'img[src^="blob:"]',
		'img[src^="data:"]',
		'img[data-testid="image-thumb"]',
		'img[data-testid="image"]',
		'img.media-image',
	];
	let img = null;
	for (const s of selectors) {
		img = el.querySelector(s);
		if (img) {
			break;
		}
	}
	if (!img) {
		return '';
	}
	if (!img.complete) {
		await new Promise(resolve => {
			img.onload = resolve;
			img.onerror = resolve;
		});
	}
	try {
		const canvas = document.createElement('canvas');
		canvas.width = img.naturalWidth || img.width;
		canvas.height = img.naturalHeight || img.height;
		const ctx = canvas.getContext('2d');
		if (!ctx) {
			return '';
		}
		ctx.drawImage(img, 0, 0);
		return canvas.toDataURL('image/jpeg', 0.9);
	} catch (e) {
		return '';
	}
})(%s)`
