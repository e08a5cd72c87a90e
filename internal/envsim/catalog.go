package envsim

// browserRoots are the globals whose member accesses count as
// environment dependencies.
var browserRoots = map[string]bool{
	"window":         true,
	"document":       true,
	"navigator":      true,
	"location":       true,
	"screen":         true,
	"history":        true,
	"performance":    true,
	"localStorage":   true,
	"sessionStorage": true,
	"crypto":         true,
}

// staticCatalog seeds the manifest with realistic defaults for the
// paths scripts probe most. Live extraction and the model fill overlay
// these.
var staticCatalog = map[string]interface{}{
	"navigator.userAgent":           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"navigator.platform":            "Win32",
	"navigator.language":            "en-US",
	"navigator.languages":           []interface{}{"en-US", "en"},
	"navigator.webdriver":           false,
	"navigator.hardwareConcurrency": 8.0,
	"navigator.deviceMemory":        8.0,
	"navigator.vendor":              "Google Inc.",
	"navigator.appName":             "Netscape",
	"navigator.appVersion":          "5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"navigator.cookieEnabled":       true,
	"navigator.doNotTrack":          nil,
	"navigator.maxTouchPoints":      0.0,
	"navigator.plugins.length":      3.0,

	"screen.width":       1920.0,
	"screen.height":      1080.0,
	"screen.availWidth":  1920.0,
	"screen.availHeight": 1040.0,
	"screen.colorDepth":  24.0,
	"screen.pixelDepth":  24.0,

	"location.href":     "https://example.com/",
	"location.origin":   "https://example.com",
	"location.protocol": "https:",
	"location.host":     "example.com",
	"location.hostname": "example.com",
	"location.port":     "",
	"location.pathname": "/",
	"location.search":   "",
	"location.hash":     "",

	"window.innerWidth":       1920.0,
	"window.innerHeight":      937.0,
	"window.outerWidth":       1920.0,
	"window.outerHeight":      1040.0,
	"window.devicePixelRatio": 1.0,
	"window.name":             "",

	"document.title":           "Document",
	"document.referrer":        "",
	"document.characterSet":    "UTF-8",
	"document.cookie":          "",
	"document.hidden":          false,
	"document.visibilityState": "visible",
	"document.createElement":   "[Function: createElement]",
	"document.getElementById":  "[Function: getElementById]",
	"document.querySelector":   "[Function: querySelector]",
	"document.addEventListener": "[Function: addEventListener]",

	"performance.now":        "[Function: now]",
	"performance.timeOrigin": 1700000000000.0,

	"localStorage.getItem":    "[Function: getItem]",
	"localStorage.setItem":    "[Function: setItem]",
	"sessionStorage.getItem":  "[Function: getItem]",
	"sessionStorage.setItem":  "[Function: setItem]",
	"crypto.getRandomValues":  "[Function: getRandomValues]",
	"crypto.randomUUID":       "[Function: randomUUID]",
	"window.atob":             "[Function: atob]",
	"window.btoa":             "[Function: btoa]",
	"window.setTimeout":       "[Function: setTimeout]",
	"window.setInterval":      "[Function: setInterval]",
	"window.addEventListener": "[Function: addEventListener]",
}
