package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
)

// Child collection handlers. Each one builds an app.Command from the route
// and hands it to the dispatcher, which owns the semantics and status codes.

func childCommand(c *gin.Context, op domain.Operation) app.Command {
	return app.Command{
		Operation: op,
		Kind:      child.Kind(c.Param("kind")),
		ParentID:  domain.EntityID(c.Param("id")),
	}
}

func (s *Server) execute(c *gin.Context, cmd app.Command) {
	reply, err := s.container.Dispatcher.Execute(c.Request.Context(), cmd, userFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(reply.Status, reply)
}

func readBody(c *gin.Context) ([]byte, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, domain.BadRequestf("read body: %v", err))
		return nil, false
	}
	if len(raw) == 0 {
		respondError(c, domain.BadRequestf("request body is required"))
		return nil, false
	}
	return raw, true
}

func withCriteria(c *gin.Context, cmd *app.Command) bool {
	parse := child.ParseQuery
	if cmd.Operation.Mutates() {
		parse = child.ParseStrictQuery
	}
	q := c.Request.URL.Query()
	q.Del(tokenParam)
	crit, err := parse(q)
	if err != nil {
		respondError(c, err)
		return false
	}
	cmd.Criteria = crit
	return true
}

// byField resolves /by/:field/:value onto the matching *-by-field operation.
func byField(c *gin.Context, verb string) (app.Command, bool) {
	f, err := child.ParseField(c.Param("field"))
	if err != nil {
		respondError(c, err)
		return app.Command{}, false
	}
	op, err := app.ByFieldOperation(verb, f)
	if err != nil {
		respondError(c, err)
		return app.Command{}, false
	}
	cmd := childCommand(c, op)
	if f == child.FieldID {
		cmd.ID = domain.EntityID(c.Param("value"))
	} else {
		cmd.Value = c.Param("value")
	}
	return cmd, true
}

func (s *Server) handleGetChildren(c *gin.Context) {
	cmd := childCommand(c, domain.OpGet)
	if !withCriteria(c, &cmd) {
		return
	}
	s.execute(c, cmd)
}

func (s *Server) handleGetChild(c *gin.Context) {
	cmd := childCommand(c, domain.OpGetByID)
	cmd.ID = domain.EntityID(c.Param("childId"))
	s.execute(c, cmd)
}

func (s *Server) handleSaveChild(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	cmd := childCommand(c, domain.OpSave)
	cmd.Element = raw
	s.execute(c, cmd)
}

func (s *Server) handleSaveChildren(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	cmd := childCommand(c, domain.OpSaveMany)
	cmd.Elements = raw
	s.execute(c, cmd)
}

func (s *Server) handleUpdateChild(c *gin.Context) {
	cmd := childCommand(c, domain.OpUpdate)
	if !withCriteria(c, &cmd) {
		return
	}
	raw, ok := readBody(c)
	if !ok {
		return
	}
	cmd.Element = raw
	s.execute(c, cmd)
}

func (s *Server) handleUpdateChildren(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	cmd := childCommand(c, domain.OpUpdateMany)
	cmd.Elements = raw
	s.execute(c, cmd)
}

func (s *Server) handleUpdateChildByID(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	cmd := childCommand(c, domain.OpUpdateByID)
	cmd.ID = domain.EntityID(c.Param("childId"))
	cmd.Element = raw
	s.execute(c, cmd)
}

func (s *Server) handleUpdateChildBy(c *gin.Context) {
	cmd, ok := byField(c, "update")
	if !ok {
		return
	}
	raw, ok := readBody(c)
	if !ok {
		return
	}
	cmd.Element = raw
	s.execute(c, cmd)
}

func (s *Server) handleDeleteChild(c *gin.Context) {
	cmd := childCommand(c, domain.OpDelete)
	if !withCriteria(c, &cmd) {
		return
	}
	s.execute(c, cmd)
}

func (s *Server) handleDeleteChildren(c *gin.Context) {
	cmd := childCommand(c, domain.OpDeleteMany)
	if !withCriteria(c, &cmd) {
		return
	}
	s.execute(c, cmd)
}

func (s *Server) handleDeleteChildByID(c *gin.Context) {
	cmd := childCommand(c, domain.OpDeleteByID)
	cmd.ID = domain.EntityID(c.Param("childId"))
	s.execute(c, cmd)
}

func (s *Server) handleDeleteChildBy(c *gin.Context) {
	cmd, ok := byField(c, "delete")
	if !ok {
		return
	}
	s.execute(c, cmd)
}
