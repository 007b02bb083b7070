package js

// IS_PRESENT reports whether an element matching a css selector or an xpath
// currently exists in the document.
var IS_PRESENT string = `
(selector, isXPath) => {
    if (isXPath) {
        return document.evaluate(selector, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue !== null;
    }
    return document.querySelector(selector) !== null;
}
`

// IS_TOP_VISIBLE reports whether the element at xpath is rendered and not
// covered by another element, i.e. a click would reach it.
var IS_TOP_VISIBLE string = `
(xpath) => {
    element = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
    if (!element) return false;

    if (element.offsetWidth === 0 || element.offsetHeight === 0) return false;
    var rects = element.getClientRects(),
        on_top = function (r) {
            var x = (r.left + r.right) / 2, y = (r.top + r.bottom) / 2;
            return document.elementFromPoint(x, y) === element;
        };
    for (var i = 0, l = rects.length; i < l; i++) {
        var r = rects[i]
        if (on_top(r)) return true;
    }
    return false;
}
`
