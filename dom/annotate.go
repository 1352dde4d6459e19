package dom

// AnnotatorJS records the layout of the current page into the DOM so a
// serialized copy can be measured without a browser. It writes
// data-rt-top (offset from the document top) and data-rt-height (outer
// height) on every element of the body, and the document and window heights
// on <html>. It returns the document height.
//
// Run it after images have loaded: they change the layout.
const AnnotatorJS = `() => {
	const root = document.documentElement;
	const body = document.body || root;
	const scrollY = window.pageYOffset || root.scrollTop || 0;
	const mark = (el) => {
		const r = el.getBoundingClientRect();
		el.setAttribute('data-rt-top', String(Math.round(r.top + scrollY)));
		el.setAttribute('data-rt-height', String(Math.round(r.height)));
	};
	mark(body);
	for (const el of body.querySelectorAll('*')) {
		mark(el);
	}
	const docHeight = Math.max(
		body.scrollHeight, root.scrollHeight,
		body.offsetHeight, root.offsetHeight,
		root.clientHeight
	);
	root.setAttribute('data-rt-doc-height', String(docHeight));
	root.setAttribute('data-rt-viewport-height', String(window.innerHeight));
	return docHeight;
}`

// BeaconJS is served to embedding pages. It annotates the page once
// everything has loaded, opens a session with the annotated markup and
// reports every scroll event, click on a tel: or mailto: link and form
// submission. The session endpoint and API key are read from the script
// tag's data-endpoint and data-key attributes. A form is named by its
// data-form-title, name or id attribute.
const BeaconJS = `(function () {
	var script = document.currentScript;
	var endpoint = script.getAttribute('data-endpoint') || '/api/v1/sessions';
	var key = script.getAttribute('data-key') || '';
	var annotate = ` + AnnotatorJS + `;
	var post = function (url, body) {
		return fetch(url, {
			method: 'POST',
			headers: {'Content-Type': 'application/json', 'X-API-Key': key},
			body: JSON.stringify(body),
			keepalive: true
		}).then(function (r) { return r.status === 204 ? null : r.json(); });
	};
	window.addEventListener('load', function () {
		annotate();
		post(endpoint, {
			url: window.location.href,
			html: document.documentElement.outerHTML,
			viewport_height: window.innerHeight
		}).then(function (res) {
			if (!res || !res.id) { return; }
			var base = endpoint + '/' + res.id;
			window.addEventListener('scroll', function () {
				post(base + '/scroll', {
					scroll_top: window.pageYOffset,
					viewport_height: window.innerHeight
				});
			}, {passive: true});
			document.addEventListener('click', function (ev) {
				var link = ev.target.closest && ev.target.closest('a[href^="tel:"], a[href^="mailto:"]');
				if (!link) { return; }
				var href = link.getAttribute('href');
				post(base + '/interaction', {
					kind: href.indexOf('tel:') === 0 ? 'call' : 'email',
					href: href
				});
			}, true);
			document.addEventListener('submit', function (ev) {
				var form = ev.target;
				post(base + '/interaction', {
					kind: 'form',
					form_title: form.getAttribute('data-form-title') || form.getAttribute('name') || form.id || ''
				});
			}, true);
		});
	});
})();`
