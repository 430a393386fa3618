package contracts

import "github.com/julienschmidt/httprouter"

// Handler is implemented by every HTTP handler group the application mounts.
type Handler interface {
	RegisterRoutes(router *httprouter.Router)
}
