package routes

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/tree-store/tree-store/internal/logging"
	"github.com/tree-store/tree-store/internal/treecache"
	"github.com/tree-store/tree-store/internal/treesync"
	"github.com/tree-store/tree-store/internal/version"
)

// RegisterNodeRoutes 挂载节点读写、缓存失效与 /-/ 诊断接口。
func RegisterNodeRoutes(app *fiber.App, syncer *treesync.Synchronizer, logger *logrus.Logger) {
	if app == nil || syncer == nil || logger == nil {
		return
	}

	app.Get("/-/health", func(c fiber.Ctx) error {
		if !syncer.Ready() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "starting"})
		}
		if err := syncer.WaitReady(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "bootstrap_failed"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/-/tree", func(c fiber.Ctx) error {
		dump, err := syncer.SerializeCache()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "serialize_failed"})
		}
		return c.JSON(fiber.Map{
			"version": version.Full(),
			"tree":    json.RawMessage(dump),
		})
	})

	app.Get("/nodes/*", handleGetNode(syncer, logger))
	app.Put("/nodes/*", handlePutNode(syncer, logger))
	app.Get("/branches/*", handleGetBranch(syncer, logger))
	app.Delete("/cache/*", handleInvalidate(syncer))
}

// handleGetNode 解析单个节点：Leaf 以原文返回，Listing/Branch 以 JSON 返回，
// 不存在返回 404。
func handleGetNode(syncer *treesync.Synchronizer, logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		nodePath := c.Params("*")

		node, err := syncer.GetPath(c.Context(), nodePath)
		if err != nil {
			logger.WithFields(logging.NodeFields("get_node", nodePath, false)).Error(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "read_failed"})
		}
		if node == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "node_not_found"})
		}
		return renderNode(c, node)
	}
}

// handleGetBranch 解析整棵子树并以 JSON 返回。
func handleGetBranch(syncer *treesync.Synchronizer, logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		nodePath := c.Params("*")

		node, err := syncer.GetBranch(c.Context(), nodePath)
		if err != nil {
			logger.WithFields(logging.NodeFields("get_branch", nodePath, false)).Error(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "read_failed"})
		}
		return c.JSON(node)
	}
}

// handlePutNode 将请求体写入叶子节点（写穿），成功返回 204。
func handlePutNode(syncer *treesync.Synchronizer, logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		nodePath := c.Params("*")
		if nodePath == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "node_path_required"})
		}

		if err := syncer.WriteLeaf(c.Context(), nodePath, string(c.Body())); err != nil {
			logger.WithFields(logging.NodeFields("put_node", nodePath, false)).Error(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "write_failed"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// handleInvalidate 使缓存条目失效；删除是幂等的，路径不存在也返回 204。
func handleInvalidate(syncer *treesync.Synchronizer) fiber.Handler {
	return func(c fiber.Ctx) error {
		syncer.Invalidate(c.Params("*"))
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func renderNode(c fiber.Ctx, node treecache.Node) error {
	switch v := node.(type) {
	case treecache.Leaf:
		return c.SendString(string(v))
	default:
		return c.JSON(v)
	}
}
