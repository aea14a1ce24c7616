// Package gridrl trains discrete-action agents in grid
// worlds with Proximal Policy Optimization.
//
// The root package holds the pieces shared by training
// and evaluation: environments and their vectorized
// wrapper, the categorical action space, the policy
// model, the rollout buffer and advantage estimation.
// See the ppo, ckpt, train and evaluate sub-packages for
// the rest of the pipeline.
package gridrl
