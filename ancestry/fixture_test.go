package ancestry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/page/sandbox"
)

// layout is shared by every fixture: #btn sits inside #m inside #root.
const layout = `
<div id="root">
  <main id="m"><button id="btn">go</button></main>
  <span id="plain"></span>
</div>
<p id="outside"></p>`

// reactPrelude gives fixture scripts Fiber-shaped helpers.
const reactPrelude = `
const MEMO = Symbol.for("react.memo");
const FWD = Symbol.for("react.forward_ref");
const LAZY = Symbol.for("react.lazy");
const CTX = Symbol.for("react.context");
const PROVIDER = Symbol.for("react.provider");
function fiber(type, parent, elementType) {
	return { type: type, elementType: elementType === undefined ? type : elementType, return: parent || null };
}
function attach(id, f) { document.getElementById(id)["__reactFiber$t3st"] = f; }
const hostRoot = fiber(null, null);
`

const reactThreeLevel = reactPrelude + `
function App() {}
function Layout() {}
function Target() {}
const app = fiber(App, hostRoot);
const lay = fiber(Layout, app);
const main = fiber("main", lay);
const target = fiber(Target, main);
attach("m", main);
attach("btn", fiber("button", target));
document.getElementById("root")["__reactContainer$t3st"] = hostRoot;
`

const vueThreeLevel = `
const app = { type: { name: "App" }, parent: null };
const lay = { type: { __name: "Layout" }, parent: app };
const header = { type: { __file: "src/components/SiteHeader.vue" }, parent: lay };
const anon = { type: {}, parent: header };
document.getElementById("m").__vueParentComponent = anon;
`

const angularTwoLevel = `
class _AppComponent {}
class HeroCard {}
const byID = new Map([["root", new _AppComponent()], ["m", new HeroCard()], ["plain", {}]]);
window.ng = { getComponent(el) { return byID.get(el.id) || null; } };
`

const svelteTwoLevel = `
document.getElementById("root").__svelte_meta = { loc: { file: "src/App.svelte", line: 1 } };
document.getElementById("m").__svelte_meta = { loc: { file: "src/lib/Nav.svelte", line: 3 } };
document.getElementById("btn").__svelte_meta = { loc: { file: "src/lib/Nav.svelte", line: 4 } };
`

func load(t *testing.T, body, script string) *sandbox.Document {
	t.Helper()
	doc, err := sandbox.Load("<html><body>"+body+"</body></html>", script)
	require.NoError(t, err)
	return doc
}

func el(t *testing.T, doc page.Document, selector string) page.Value {
	t.Helper()
	v := doc.QuerySelector(selector)
	require.False(t, page.Nil(v), "no element for %s", selector)
	return v
}
